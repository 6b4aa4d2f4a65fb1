package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/porthorian/openperm/pkg/authz"
)

type definitionsConfig struct {
	Path string
}

func init() {
	cfg := &definitionsConfig{}

	for _, command := range []*cobra.Command{
		newExpandCommand(cfg),
		newCheckCommand(cfg),
		newRatioCommand(cfg),
	} {
		command.Flags().StringVar(&cfg.Path, "definitions", "", "Path to the YAML bundle definitions. Can also be set via OPENPERM_DEFINITIONS.")
		rootCmd.AddCommand(command)
	}
}

func newExpandCommand(cfg *definitionsConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "expand <bundle:name:level>...",
		Short: "Print the levels and masks a selection expands to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd, cfg.Path)
			if err != nil {
				return err
			}

			selection, err := parseSelectionArgs(args)
			if err != nil {
				return err
			}

			registry.Expand(selection)
			grants := registry.Encode(selection)

			for _, bundle := range sortedKeys(selection) {
				requested := selection[bundle]
				for _, name := range sortedKeys(requested) {
					levels := make([]string, 0, len(requested[name]))
					for _, level := range requested[name] {
						levels = append(levels, string(level))
					}
					sort.Strings(levels)
					cmd.Printf("%s:%s = %d [%s]\n", bundle, name, uint64(grants[bundle][name]), strings.Join(levels, ","))
				}
			}
			return nil
		},
	}
}

func newCheckCommand(cfg *definitionsConfig) *cobra.Command {
	var grantArgs []string

	command := &cobra.Command{
		Use:   "check <bundle:name:level>...",
		Short: "Evaluate permissions against stored masks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd, cfg.Path)
			if err != nil {
				return err
			}

			grants, err := parseGrantArgs(grantArgs)
			if err != nil {
				return err
			}

			denied := 0
			for _, permission := range args {
				if _, err := authz.ParsePermission(permission); err != nil {
					return err
				}

				result := "denied"
				if registry.IsGranted(grants, permission) {
					result = "granted"
				} else {
					denied++
				}
				cmd.Printf("%s\t%s\n", permission, result)
			}

			if denied > 0 {
				return fmt.Errorf("%d of %d permission(s) denied", denied, len(args))
			}
			return nil
		},
	}

	command.Flags().StringArrayVar(&grantArgs, "grant", nil, "Stored mask as bundle:name=mask. Repeatable.")
	return command
}

func newRatioCommand(cfg *definitionsConfig) *cobra.Command {
	var expand bool

	command := &cobra.Command{
		Use:   "ratio [bundle:name:level]...",
		Short: "Print the granted/available ratio of every bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd, cfg.Path)
			if err != nil {
				return err
			}

			selection, err := parseSelectionArgs(args)
			if err != nil {
				return err
			}
			if expand {
				registry.Expand(selection)
			}

			ratios := registry.Ratios(selection)
			for _, bundle := range sortedKeys(ratios) {
				ratio := ratios[bundle]
				cmd.Printf("%s\t%d/%d\n", bundle, ratio.Granted, ratio.Available)
			}
			return nil
		},
	}

	command.Flags().BoolVar(&expand, "expand", false, "Apply implication rules before counting.")
	return command
}

func loadRegistry(cmd *cobra.Command, path string) (*authz.Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = lookupEnv("OPENPERM_DEFINITIONS")
	}
	if path == "" {
		return nil, errors.New("missing definitions: set --definitions or OPENPERM_DEFINITIONS")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer file.Close()

	registry, err := authz.NewRegistryFromDefinitions(file)
	if err != nil {
		return nil, fmt.Errorf("load definitions %q: %w", path, err)
	}

	newLogger(cmd).V(1).Info("loaded permission registry", "path", path, "bundles", registry.Bundles())
	return registry, nil
}

// parseSelectionArgs groups "bundle:name:level" arguments into a selection.
func parseSelectionArgs(args []string) (authz.Selection, error) {
	selection := authz.Selection{}
	for _, arg := range args {
		permission, err := authz.ParsePermission(arg)
		if err != nil {
			return nil, err
		}

		requested, ok := selection[permission.Bundle]
		if !ok {
			requested = authz.RequestedLevels{}
			selection[permission.Bundle] = requested
		}
		requested[permission.Name] = append(requested[permission.Name], permission.Level)
	}
	return selection, nil
}

// parseGrantArgs reads "bundle:name=mask" arguments. Masks are decimal or
// 0x/0b prefixed.
func parseGrantArgs(args []string) (authz.Grants, error) {
	grants := authz.Grants{}
	for _, arg := range args {
		key, value, ok := strings.Cut(strings.TrimSpace(arg), "=")
		if !ok {
			return nil, fmt.Errorf("invalid grant %q: expected bundle:name=mask", arg)
		}

		bundle, name, ok := strings.Cut(strings.TrimSpace(key), ":")
		bundle, name = strings.TrimSpace(bundle), strings.TrimSpace(name)
		if !ok || bundle == "" || name == "" || strings.Contains(name, ":") {
			return nil, fmt.Errorf("invalid grant %q: expected bundle:name=mask", arg)
		}

		mask, err := strconv.ParseUint(strings.TrimSpace(value), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid grant %q: mask must be an unsigned integer", arg)
		}

		granted, exists := grants[bundle]
		if !exists {
			granted = authz.GrantedMask{}
			grants[bundle] = granted
		}
		granted[name] |= authz.Mask(mask)
	}
	return grants, nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

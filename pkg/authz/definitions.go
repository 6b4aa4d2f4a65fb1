package authz

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// PermissionSet lists permission names sharing one flavor.
type PermissionSet struct {
	Names   []string `yaml:"names"`
	Publish bool     `yaml:"publish"`
}

// Definition describes a bundle declaratively. The flavors are applied in the
// order standard, extended, manage; a name listed twice keeps the last one.
type Definition struct {
	Bundle   string         `yaml:"bundle"`
	Disabled bool           `yaml:"disabled"`
	Standard *PermissionSet `yaml:"standard"`
	Extended *PermissionSet `yaml:"extended"`
	Manage   []string       `yaml:"manage"`
}

type definitionFile struct {
	Bundles []Definition `yaml:"bundles"`
}

func (d Definition) Name() string {
	return d.Bundle
}

func (d Definition) Enabled() bool {
	return !d.Disabled
}

func (d Definition) DefinePermissions(schema *Schema) error {
	if d.Standard != nil {
		if err := schema.AddStandardPermissions(d.Standard.Names, d.Standard.Publish); err != nil {
			return err
		}
	}
	if d.Extended != nil {
		if err := schema.AddExtendedPermissions(d.Extended.Names, d.Extended.Publish); err != nil {
			return err
		}
	}
	if len(d.Manage) > 0 {
		if err := schema.AddManagePermission(d.Manage); err != nil {
			return err
		}
	}
	return nil
}

// LoadDefinitions decodes a YAML document of the form
//
//	bundles:
//	  - bundle: lead
//	    extended: {names: [leads], publish: true}
//	    standard: {names: [imports]}
//	    manage: [fields]
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var file definitionFile

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: decode definitions: %w", err)
	}

	return file.Bundles, nil
}

// NewRegistryFromDefinitions registers every definition read from r.
func NewRegistryFromDefinitions(r io.Reader) (*Registry, error) {
	definitions, err := LoadDefinitions(r)
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, definition := range definitions {
		if err := registry.Register(definition); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

package cmd

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"
)

var BuildVersion = "dev"

var verbosity int

var rootCmd = &cobra.Command{
	Use:          "openperm",
	Short:        "openperm CLI",
	Long:         "CLI for openperm schema migrations and offline permission checks.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Log verbosity; 1 logs registry and migration details.")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of the openperm CLI",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	})
}

// newLogger writes key/value log lines to the command's stderr.
func newLogger(cmd *cobra.Command) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			cmd.PrintErrf("%s: %s\n", prefix, args)
			return
		}
		cmd.PrintErrln(args)
	}, funcr.Options{Verbosity: verbosity})
}

func Execute() error {
	return rootCmd.Execute()
}

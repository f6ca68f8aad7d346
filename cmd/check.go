package cmd

import (
	"os"

	"github.com/smazurov/aqiwatch/internal/preflight"
	"github.com/spf13/cobra"
)

// exit is replaced in tests.
var exit = os.Exit

// CreateCheckCmd creates the check command. configure is called after flags
// and the config file are loaded and returns what to check.
func CreateCheckCmd(configure func() preflight.Config) *cobra.Command {
	var port string
	var files []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the server can start",
		Long: `Runs preflight diagnostics for the supervised server: the command resolves, ` +
			`the working directory and required files exist, the log directory is writable ` +
			`and the server port is free. Exits 1 when a required check fails.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg := configure()
			cfg.Port = port
			if cmd.Flags().Changed("require") {
				cfg.RequiredFiles = files
			}

			results := preflight.Run(cfg)
			preflight.Print(cmd.OutOrStdout(), results)
			if preflight.Failed(results) {
				exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&port, "port", "0.0.0.0:5000", "Address the server binds, checked for availability (empty to skip)")
	cmd.Flags().StringSliceVar(&files, "require", preflight.DefaultRequiredFiles, "Files that must exist in the working directory")
	return cmd
}

// Package config provides configuration management commands.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge/internal/cli"
	appconfig "github.com/dirbridge/dirbridge/internal/config"
	"github.com/dirbridge/dirbridge/pkg/errors"
)

// NewCommand creates the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the dirbridge configuration",
	}

	cmd.AddCommand(newInitCommand(), newValidateCommand())
	return cmd
}

// newInitCommand creates the command writing a starter config file.
func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "dirbridge.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return errors.NewConfigError("init", fmt.Sprintf("%s already exists, use --force to overwrite", path), nil)
				}
			}

			out, err := appconfig.DefaultYAML()
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, out, 0o600); err != nil {
				return errors.NewConfigError("init", "cannot write config file", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s; fill in the source, target and pattern sections\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// newValidateCommand creates the command checking the active config.
func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: source %s, store %s, schedule %q\n",
				cfg.Source.URL, cfg.General.StoreDriver, cfg.General.CronExpression)
			return nil
		},
	}
}

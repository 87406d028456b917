// Package cmd assembles the dirbridge command tree.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	configcmd "github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/config"
	"github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/conflicts"
	"github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/resolve"
	"github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/retry"
	"github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/runs"
	"github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/serve"
	synccmd "github.com/dirbridge/dirbridge/cmd/dirbridge/cmd/sync"
	"github.com/dirbridge/dirbridge/internal/cli"
	"github.com/dirbridge/dirbridge/pkg/logging"
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "dirbridge",
	Short: "LDAP to cloud directory reconciliation",
	Long: `Dirbridge mirrors principals from an LDAP directory into a cloud
identity directory. It imports the source snapshot, diffs it against the
records it already tracks, and applies the resulting creates, updates
and deletes to the target, either on demand or on a schedule.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the command tree with signal-driven cancellation.
func Execute(version, commit, date string) error {
	rootCmd.Version = version + " (" + commit + ", " + date + ")"

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Err(err).Msg("Command failed")
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String(cli.ConfigFlag, "", "config file (default dirbridge.yaml in . or $HOME)")
	rootCmd.PersistentFlags().BoolP(cli.VerboseFlag, "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP(cli.QuietFlag, "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().Bool(cli.JSONFlag, false, "log JSON instead of console output")

	rootCmd.AddCommand(
		synccmd.NewCommand(),
		serve.NewCommand(),
		conflicts.NewCommand(),
		resolve.NewCommand(),
		retry.NewCommand(),
		runs.NewCommand(),
		configcmd.NewCommand(),
	)
}

// setupLogging configures the default logger from the global flags.
func setupLogging(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()

	level := zerolog.InfoLevel
	if verbose, _ := flags.GetBool(cli.VerboseFlag); verbose {
		level = zerolog.DebugLevel
	}
	if quiet, _ := flags.GetBool(cli.QuietFlag); quiet {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if jsonLogs, _ := flags.GetBool(cli.JSONFlag); jsonLogs {
		logging.SetDefault(logging.NewJSON(os.Stderr))
	} else {
		logging.SetDefault(logging.NewConsole())
	}
	return nil
}

// Package cli carries the glue shared by the dirbridge subcommands:
// flag lookup, configuration loading and instance construction.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge"
	"github.com/dirbridge/dirbridge/internal/config"
)

// Names of the persistent flags registered on the root command.
const (
	ConfigFlag  = "config"
	VerboseFlag = "verbose"
	QuietFlag   = "quiet"
	JSONFlag    = "log-json"
)

// ConfigPath returns the --config flag value.
func ConfigPath(cmd *cobra.Command) string {
	path, _ := cmd.Root().PersistentFlags().GetString(ConfigFlag)
	return path
}

// LoadConfig loads the configuration honoring the --config flag.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(ConfigPath(cmd))
}

// NewBridge builds a Dirbridge instance from the configuration the
// command points at.
func NewBridge(cmd *cobra.Command, opts ...dirbridge.Option) (dirbridge.Dirbridge, error) {
	opts = append([]dirbridge.Option{dirbridge.WithConfigFile(ConfigPath(cmd))}, opts...)
	return dirbridge.New(opts...)
}

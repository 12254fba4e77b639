// Package cli implements the pitcache admin commands: statistics, expiry
// cleanup, and the four invalidation paths over a cache directory.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantarc/pitcache/internal/cache"
	"github.com/quantarc/pitcache/internal/config"
)

// logger is the package-level logger for CLI operations, configured in the
// root command's PersistentPreRunE.
var logger zerolog.Logger //nolint:gochecknoglobals // set once per invocation before any subcommand runs

// options carries resolved configuration from the root command to
// subcommands.
type options struct {
	cfg *config.Config
}

// openStore opens the cache store described by the resolved configuration.
// Callers own the returned store and must Close it.
func (o *options) openStore() (*cache.Store, error) {
	return cache.NewStore(o.cfg.Cache.Directory, o.cfg.Cache.TTLDays, o.cfg.Cache.Extension, logger)
}

// NewRootCmd creates the root Cobra command for the pitcache CLI. It wires
// up configuration loading, logging, and the admin subcommands.
func NewRootCmd(ver string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "pitcache",
		Short:         "Point-in-time artifact cache maintenance",
		Long:          "pitcache: inspect and maintain the research platform's point-in-time artifact cache",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
				cfg.Cache.Directory = dir
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Logging.Level = "debug"
				cfg.Logging.Format = "console"
				cfg.Logging.File = ""
			}

			logger = config.NewLogger(cfg.Logging).With().Str("component", "cli").Logger()
			opts.cfg = cfg

			logger.Debug().Str("command", cmd.Name()).Str("cache_dir", cfg.Cache.Directory).Msg("command started")
			return nil
		},
	}

	cmd.PersistentFlags().String("config", "", "config file path (default ~/.pitcache/config.yaml)")
	cmd.PersistentFlags().String("cache-dir", "", "cache directory (overrides config file and env)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(newStatsCmd(opts), newCleanupCmd(opts), newInvalidateCmd(opts))

	return cmd
}

const rootCmdExample = `  # Show physical cache statistics
  pitcache stats

  # Remove expired entries and orphan files
  pitcache cleanup

  # Expire everything regardless of age
  pitcache cleanup --ttl-days 0

  # Drop every artifact computed against snapshot snap_123
  pitcache invalidate snapshot snap_123

  # Drop entries built on any crsp version other than v2.1.0
  pitcache invalidate dataset crsp v2.1.0

  # Drop momentum_12m artifacts after a config change
  pitcache invalidate config momentum_12m`

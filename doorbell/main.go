// Command doorbell runs the doorbell monitor daemon and provisions its
// credential store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/itohio/doorbell/pkg/config"
	"github.com/itohio/doorbell/pkg/store"
	"github.com/itohio/doorbell/pkg/supervisor"
)

var version = "dev"

// exitRestart asks the service manager to start the daemon again.
const exitRestart = 3

type rootOptions struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, supervisor.ErrRestart) {
			os.Exit(exitRestart)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "doorbell",
		Short: "Hall sensor doorbell monitor",
		Long: `doorbell watches a Hall-effect sensor on a mechanical bell, detects rings
and reports them over MQTT and Pushover. It keeps WiFi up on its own and
falls back to hosting an access point when no known network is in range.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd, cfg.Log.Level, opts.debug)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Configuration file path")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newAPCmd(opts),
		newMqttCmd(opts),
		newPushoverCmd(opts),
		newPortsCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func newLogger(cmd *cobra.Command, level string, debug bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
}

func (o *rootOptions) openStore() (*store.SQLite, error) {
	db, err := store.OpenSQLite(o.cfg.Store.Path, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return db, nil
}

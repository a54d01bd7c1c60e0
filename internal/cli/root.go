// Package cli wires the magpie command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"magpie/internal/archive"
	"magpie/internal/config"
	"magpie/internal/logging"
	"magpie/internal/metrics"
	"magpie/internal/store"
	"magpie/internal/store/couchdb"
	"magpie/internal/store/sqlitedoc"
	"magpie/internal/theme"
	"magpie/internal/twclient"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the magpie CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "magpie",
		Short: "magpie - incremental Twitter archiver",
		Long:  theme.Banner() + "\nArchives timeline, mentions, favorites, and direct messages\ninto a revisioned document store, incrementally and exactly once.",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "./magpie.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))
	cmd.AddCommand(NewStreamCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

func (o *RootOptions) logger() zerolog.Logger {
	return logging.New(o.LogLevel, true)
}

func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, errors.Wrapf(err, "loading config %s (run `magpie init` to create one)", o.ConfigPath)
	}
	return cfg, nil
}

// openStore builds the configured document store, blocking until it is
// ready for use. Closing is the caller's job via the returned func.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "", "sqlite":
		db, err := sqlitedoc.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "opening %s", cfg.Storage.DBPath)
		}
		return db, func() { _ = db.Close() }, nil
	case "couchdb":
		c := couchdb.New(cfg.CouchDB.URL, cfg.CouchDB.Database, cfg.CouchDB.Username, cfg.CouchDB.Password, log)
		if err := c.EnsureDatabase(ctx); err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func newArchiver(s store.Store, log zerolog.Logger) *archive.Archiver {
	return archive.New(s, log)
}

func newFeedClient(cfg config.Config, log zerolog.Logger) *twclient.Client {
	if cfg.Credentials.ConsumerKey == "" || cfg.Credentials.AccessToken == "" {
		log.Warn().Msg("missing API credentials; feed requests will fail")
	}
	return twclient.New(twclient.Credentials{
		ConsumerKey:    cfg.Credentials.ConsumerKey,
		ConsumerSecret: cfg.Credentials.ConsumerSecret,
		AccessToken:    cfg.Credentials.AccessToken,
		AccessSecret:   cfg.Credentials.AccessSecret,
	})
}

func startMetrics(cfg config.Config) {
	metrics.StartServer(cfg.Metrics.Addr)
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

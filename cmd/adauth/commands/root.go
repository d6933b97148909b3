// Package commands implements the adauth command line.
package commands

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/netresearch/adbind"
	"github.com/netresearch/adbind/internal/config"
	"github.com/netresearch/adbind/userstore"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type rootOptions struct {
	configFile string

	// dialer replaces the network dialer, nil dials the configured server.
	dialer adbind.Dialer
}

// NewRootCommand returns the adauth command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adauth",
		Short: "Authenticate against Active Directory",
		Long: `adauth verifies Active Directory credentials with a simple bind, resolves
roles from group membership and optionally maps the account onto a secondary
user store.

All configuration options can be overridden using environment variables.
Format: ADAUTH_<SECTION>_<KEY>, e.g. ADAUTH_DIRECTORY_SERVER=ldaps://dc1.example.com`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/adauth/config.yaml)")

	cmd.AddCommand(
		newCheckCommand(opts),
		newLookupCommand(opts),
		newImportCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// runtime holds what a command needs once configuration is loaded.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   userstore.Store
	closers []io.Closer
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configFile)
}

// setup loads the configuration and opens the logger and the user store.
func (o *rootOptions) setup() (*runtime, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if cfg.File != "" {
		logger.Debug("configuration loaded", slog.String("source", cfg.File))
	}

	if cfg.Store != nil {
		store, err := userstore.Open(cfg.Store)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.store = store
		rt.closers = append(rt.closers, store)
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

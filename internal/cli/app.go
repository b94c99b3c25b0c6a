package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/config"
	"github.com/mesh-intelligence/homebook/internal/ledger"
	"github.com/mesh-intelligence/homebook/internal/logging"
	"github.com/mesh-intelligence/homebook/internal/paths"
	"github.com/mesh-intelligence/homebook/pkg/sqlite"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// app is what a command needs once configuration is resolved: the
// attached store and the ledger service on top of it.
type app struct {
	cfg       *config.Config
	configDir string
	logger    *zap.Logger
	store     types.Store
	svc       *ledger.Service
}

// loadConfig resolves the directories and reads config.yaml, applying the
// global flags on top.
func loadConfig() (*config.Config, string, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, "", err
	}
	if cfg.Store.DataDir, err = paths.ResolveDataDir(flags.dataDir, cfg.Store.DataDir); err != nil {
		return nil, "", fmt.Errorf("resolve data dir: %w", err)
	}
	if flags.user != "" {
		cfg.User = flags.user
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, configDir, nil
}

// openApp loads the configuration and attaches the store. The caller must
// call close. One-shot commands log warnings only unless log_level is debug;
// quiet is false for serve.
func openApp(quiet bool) (*app, error) {
	cfg, configDir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if quiet && level == "info" {
		level = "warn"
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}
	store := sqlite.NewBackend(sqlite.WithLogger(logger))
	if err := store.Attach(cfg.Store); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	return &app{
		cfg:       cfg,
		configDir: configDir,
		logger:    logger,
		store:     store,
		svc:       ledger.New(store, ledger.WithLogger(logger)),
	}, nil
}

func (a *app) close() error {
	err := a.store.Detach()
	_ = a.logger.Sync()
	return err
}

// withApp runs fn with an open app and detaches afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); cerr != nil && err == nil {
				err = fmt.Errorf("detach backend: %w", cerr)
			}
		}()
		return fn(cmd, a, args)
	}
}

// output prints v as JSON in --json mode and through text otherwise.
func output(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if flags.jsonMode {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// ledgerFlag adds the --ledger flag to cmd. Commands check it with
// needLedger so a missing value is reported as a usage error.
func ledgerFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "ledger", "l", "", "ledger id (required)")
}

func needLedger(id string) error {
	if id == "" {
		return usageError{errors.New(`required flag "ledger" not set`)}
	}
	return nil
}

const dateFormat = types.DateLayout

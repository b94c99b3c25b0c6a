package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/internal/config"
	"github.com/mesh-intelligence/homebook/pkg/sqlite"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize homebook storage",
		Long:  "Create the configuration and data directories, write config.yaml if missing,\nthen initialize the storage backend.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, configDir, err := loadConfig()
	if err != nil {
		return err
	}
	wrote, err := config.WriteDefault(configDir, cfg)
	if err != nil {
		return err
	}

	store := sqlite.NewBackend()
	if err := store.Attach(cfg.Store); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if err := store.Detach(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	result := map[string]any{
		"config":         filepath.Join(configDir, config.FileName),
		"config_written": wrote,
		"data_dir":       cfg.Store.DataDir,
	}
	return output(cmd, result, func(w io.Writer) {
		fmt.Fprintf(w, "homebook initialized\nconfig:\t%s\ndata:\t%s\n", result["config"], cfg.Store.DataDir)
	})
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/httpapi"
	"github.com/mesh-intelligence/homebook/internal/inbox"
	"github.com/mesh-intelligence/homebook/internal/paths"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the import inbox",
		Long: "Serve runs the JSON API on server.addr. When inbox.ledger_id is set, workbooks\n" +
			"dropped into inbox.dir are imported into that ledger as the configured user.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); cerr != nil && err == nil {
					err = fmt.Errorf("detach backend: %w", cerr)
				}
			}()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.Inbox.LedgerID != "" {
				w, err := startInbox(ctx, a)
				if err != nil {
					return err
				}
				defer func() {
					if serr := w.Stop(); serr != nil {
						a.logger.Warn("stopping inbox", zap.Error(serr))
					}
				}()
			}

			srv := httpapi.New(a.svc, httpapi.Config{Addr: a.cfg.Server.Addr}, a.logger)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (config server.addr)")
	return cmd
}

// startInbox watches the inbox directory and imports dropped workbooks into
// the configured ledger.
func startInbox(ctx context.Context, a *app) (*inbox.Watcher, error) {
	if a.cfg.User == "" {
		return nil, usageError{errors.New("inbox.ledger_id needs a user to import as")}
	}
	dir, err := paths.ResolveInboxDir(a.cfg.Inbox.Dir, a.cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}
	// Fail early when the user cannot open the ledger.
	if _, err := a.svc.GetLedger(ctx, a.cfg.User, a.cfg.Inbox.LedgerID); err != nil {
		return nil, fmt.Errorf("inbox ledger: %w", err)
	}

	importer := inbox.ImporterFunc(func(ctx context.Context, path string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		report, err := a.svc.ImportWorkbook(ctx, a.cfg.User, a.cfg.Inbox.LedgerID, f)
		if err != nil {
			return err
		}
		a.logger.Info("inbox workbook recorded", zap.String("file", path), zap.Int("transactions", report.Imported))
		return nil
	})
	w, err := inbox.New(inbox.Config{Dir: dir, Debounce: a.cfg.Inbox.Debounce}, importer, a.logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return w, nil
}

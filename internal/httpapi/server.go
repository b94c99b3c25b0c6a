// Package httpapi serves the ledger service as a JSON API.
//
// The caller names themselves with the X-User-ID header; authentication is
// left to a fronting proxy. Every route except /healthz and /metrics needs
// the header.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/ledger"
)

// UserHeader carries the acting user's id.
const UserHeader = "X-User-ID"

// Defaults applied by New.
const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxUpload       = 32 << 20
)

// Config configures a Server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	// MaxUpload bounds workbook uploads in bytes.
	MaxUpload int64
}

// Server routes HTTP requests to a ledger.Service.
type Server struct {
	svc     *ledger.Service
	cfg     Config
	logger  *zap.Logger
	metrics *metrics
	router  chi.Router
}

// New builds the router. Metrics are registered on a registry private to
// the server.
func New(svc *ledger.Service, cfg Config, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
		metrics: newMetrics(prometheus.NewRegistry(), svc),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.metrics.middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(requireUser)

		api.Get("/ledgers", s.listLedgers)
		api.Post("/ledgers", s.createLedger)
		api.Post("/invitations/{code}/accept", s.acceptInvitation)

		api.Route("/ledgers/{ledgerID}", func(l chi.Router) {
			l.Get("/", s.getLedger)
			l.Patch("/", s.renameLedger)
			l.Delete("/", s.deleteLedger)
			l.Post("/encrypt", s.encryptLedger)
			l.Post("/leave", s.leaveLedger)

			l.Get("/members", s.listMembers)
			l.Put("/members/{userID}", s.setMemberRole)
			l.Delete("/members/{userID}", s.removeMember)

			l.Get("/invitations", s.listInvitations)
			l.Post("/invitations", s.invite)
			l.Delete("/invitations/{invitationID}", s.revokeInvitation)

			l.Get("/months", s.listMonths)
			l.Get("/transactions", s.listTransactions)
			l.Post("/transactions", s.addTransaction)
			l.Get("/transactions/{transactionID}", s.getTransaction)
			l.Put("/transactions/{transactionID}", s.updateTransaction)
			l.Delete("/transactions/{transactionID}", s.deleteTransaction)

			l.Get("/assets", s.listAssets)
			l.Post("/assets", s.createAsset)
			l.Patch("/assets/{assetID}", s.renameAsset)
			l.Delete("/assets/{assetID}", s.deleteAsset)
			l.Post("/assets/{assetID}/deposit", s.mutateAsset(s.svc.Deposit))
			l.Post("/assets/{assetID}/withdraw", s.mutateAsset(s.svc.Withdraw))
			l.Post("/assets/{assetID}/adjust", s.mutateAsset(s.svc.AdjustAsset))
			l.Get("/assets/{assetID}/history", s.assetHistory)

			l.Get("/categories", s.listCategories)
			l.Get("/categories/tree", s.categoryTree)
			l.Post("/categories", s.addCategory)
			l.Patch("/categories/{categoryID}", s.renameCategory)
			l.Delete("/categories/{categoryID}", s.deleteCategory)

			l.Get("/summary/month/{month}", s.monthlySummary)
			l.Get("/summary/year/{year}", s.yearlySummary)
			l.Get("/summary/networth", s.netWorth)

			l.Get("/workbook", s.exportWorkbook)
			l.Post("/workbook", s.importWorkbook)
			l.Post("/workbook/legacy", s.migrateLegacy)
		})
	})
	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests for
// at most the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

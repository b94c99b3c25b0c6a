// Package sqlite provides the public API for the SQLite storage backend.
// It exposes the factory while the implementation stays internal.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/sqlite"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// Option configures a backend created by NewBackend.
type Option = sqlite.Option

// WithLogger routes backend diagnostics to l.
func WithLogger(l *zap.Logger) Option {
	return sqlite.WithLogger(l)
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: "~/.local/share/homebook",
//	})
//	defer store.Detach()
//
// The returned Store also implements EncryptLedger(ledgerID) (int, error),
// Months(ledgerID) ([]string, error) and Flush() error.
func NewBackend(opts ...Option) types.Store {
	return sqlite.NewBackend(opts...)
}

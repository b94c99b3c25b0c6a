// Package ledger implements the household-ledger operations on top of a
// types.Store. Every operation names the acting user and checks that user's
// role in the ledger: viewers read, editors also record entries, owners
// also manage the ledger and its members.
//
// Transactions are read through a month-sharded txcache.Cache. The service
// is the cache's only writer, so every stored change is merged into it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/txcache"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// Access errors.
var (
	ErrNotMember    = errors.New("user is not a member of the ledger")
	ErrForbidden    = errors.New("role does not permit this operation")
	ErrOwnerRemoval = errors.New("the ledger owner cannot be removed")
	ErrNoUser       = errors.New("acting user is required")
)

// InvitationTTL is how long an invitation stays redeemable.
const InvitationTTL = 7 * 24 * time.Hour

// Service is safe for concurrent use when the underlying store is.
type Service struct {
	store  types.Store
	cache  *txcache.Cache
	logger *zap.Logger
	now    func() time.Time

	cacheOpts []txcache.Option
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for mutation records.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for invitation expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCacheConcurrency bounds parallel month fetches of the transaction cache.
func WithCacheConcurrency(n int) Option {
	return func(s *Service) {
		s.cacheOpts = append(s.cacheOpts, txcache.WithConcurrency(n))
	}
}

// New returns a Service over an attached store.
func New(store types.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = txcache.New(txcache.SourceFunc(s.fetchMonth), append(s.cacheOpts, txcache.WithLogger(s.logger))...)
	return s
}

// Cache exposes the transaction cache, mainly for diagnostics.
func (s *Service) Cache() *txcache.Cache {
	return s.cache
}

func (s *Service) table(name string) (types.Table, error) {
	t, err := s.store.GetTable(name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return t, nil
}

// access is the result of a successful authorization.
type access struct {
	ledger *types.Ledger
	member *types.Member
}

// authorize checks that userID is a member of ledgerID with at least
// minRole and loads the ledger. Membership is checked first so that a
// non-member cannot tell a missing ledger from one they may not see.
func (s *Service) authorize(userID, ledgerID, minRole string) (*access, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	if ledgerID == "" {
		return nil, types.ErrInvalidID
	}
	m, err := s.membership(ledgerID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotMember
	}

	ledgers, err := s.table(types.LedgersTable)
	if err != nil {
		return nil, err
	}
	v, err := ledgers.Get(ledgerID)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", ledgerID, err)
	}
	if !types.RoleAtLeast(m.Role, minRole) {
		return nil, fmt.Errorf("%w: %s needs %s", ErrForbidden, m.Role, minRole)
	}
	return &access{ledger: v.(*types.Ledger), member: m}, nil
}

// membership returns the member row of userID in ledgerID, or nil.
func (s *Service) membership(ledgerID, userID string) (*types.Member, error) {
	members, err := s.table(types.MembersTable)
	if err != nil {
		return nil, err
	}
	rows, err := members.Fetch(map[string]any{"ledger_id": ledgerID, "user_id": userID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].(*types.Member), nil
}

// fetchMonth is the cache source: it reads one ledger month from the
// transactions table.
func (s *Service) fetchMonth(ctx context.Context, ledgerID, month string) ([]*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txs, err := s.table(types.TransactionsTable)
	if err != nil {
		return nil, err
	}
	rows, err := txs.Fetch(map[string]any{"ledger_id": ledgerID, "month": month})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.Transaction)
	}
	return out, nil
}

package ledger

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// CreateLedger creates a ledger owned by userID and records the owner as
// its first member. An empty currency means types.DefaultCurrency.
func (s *Service) CreateLedger(ctx context.Context, userID, name, currency string) (*types.Ledger, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	ledgers, err := s.table(types.LedgersTable)
	if err != nil {
		return nil, err
	}
	members, err := s.table(types.MembersTable)
	if err != nil {
		return nil, err
	}

	l := &types.Ledger{Name: name, OwnerID: userID, Currency: currency}
	id, err := ledgers.Set("", l)
	if err != nil {
		return nil, err
	}
	if _, err := members.Set("", &types.Member{LedgerID: id, UserID: userID, Role: types.RoleOwner}); err != nil {
		return nil, fmt.Errorf("adding owner: %w", err)
	}
	s.logger.Info("ledger created", zap.String("ledger", id), zap.String("user", userID))
	return l, nil
}

// ListLedgers returns the ledgers userID belongs to, sorted by name.
func (s *Service) ListLedgers(ctx context.Context, userID string) ([]*types.Ledger, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	ledgers, err := s.table(types.LedgersTable)
	if err != nil {
		return nil, err
	}
	rows, err := ledgers.Fetch(map[string]any{"member_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Ledger, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.Ledger)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetLedger returns a ledger the user can read.
func (s *Service) GetLedger(ctx context.Context, userID, ledgerID string) (*types.Ledger, error) {
	a, err := s.authorize(userID, ledgerID, types.RoleViewer)
	if err != nil {
		return nil, err
	}
	return a.ledger, nil
}

// RenameLedger changes the ledger name. Owner only.
func (s *Service) RenameLedger(ctx context.Context, userID, ledgerID, name string) (*types.Ledger, error) {
	a, err := s.authorize(userID, ledgerID, types.RoleOwner)
	if err != nil {
		return nil, err
	}
	l := a.ledger
	if err := l.Rename(name); err != nil {
		return nil, err
	}
	ledgers, err := s.table(types.LedgersTable)
	if err != nil {
		return nil, err
	}
	if _, err := ledgers.Set(l.LedgerID, l); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteLedger removes the ledger and everything recorded in it. Owner only.
func (s *Service) DeleteLedger(ctx context.Context, userID, ledgerID string) error {
	if _, err := s.authorize(userID, ledgerID, types.RoleOwner); err != nil {
		return err
	}
	ledgers, err := s.table(types.LedgersTable)
	if err != nil {
		return err
	}
	if err := ledgers.Delete(ledgerID); err != nil {
		return err
	}
	s.cache.Invalidate(ledgerID)
	s.logger.Info("ledger deleted", zap.String("ledger", ledgerID), zap.String("user", userID))
	return nil
}

// encrypter is implemented by stores that can seal existing plaintext.
type encrypter interface {
	EncryptLedger(ledgerID string) (int, error)
}

// EncryptLedger seals every plaintext sensitive field of the ledger and
// returns the number of rows changed. Owner only.
func (s *Service) EncryptLedger(ctx context.Context, userID, ledgerID string) (int, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleOwner); err != nil {
		return 0, err
	}
	enc, ok := s.store.(encrypter)
	if !ok {
		return 0, fmt.Errorf("store does not support field encryption: %w", types.ErrInvalidData)
	}
	n, err := enc.EncryptLedger(ledgerID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("ledger encrypted", zap.String("ledger", ledgerID), zap.Int("rows", n))
	return n, nil
}

package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// monthLister is implemented by stores that can list the months holding
// transactions of a ledger.
type monthLister interface {
	Months(ledgerID string) ([]string, error)
}

// AddTransaction records a new transaction in the ledger. Editor or owner.
func (s *Service) AddTransaction(ctx context.Context, userID, ledgerID string, tx *types.Transaction) (*types.Transaction, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, types.ErrInvalidData
	}
	txs, err := s.table(types.TransactionsTable)
	if err != nil {
		return nil, err
	}
	t := tx.Clone()
	t.TransactionID = ""
	t.LedgerID = ledgerID
	t.CreatedBy = userID
	if _, err := txs.Set("", t); err != nil {
		return nil, err
	}
	s.cache.Put(t)
	s.logger.Info("transaction added", zap.String("ledger", ledgerID), zap.String("transaction", t.TransactionID))
	return t, nil
}

// UpdateTransaction replaces the fields of an existing transaction. The
// ledger, creator and creation time are kept. Editor or owner.
func (s *Service) UpdateTransaction(ctx context.Context, userID, ledgerID, transactionID string, tx *types.Transaction) (*types.Transaction, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, types.ErrInvalidData
	}
	txs, err := s.table(types.TransactionsTable)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledgerTransaction(txs, ledgerID, transactionID); err != nil {
		return nil, err
	}
	t := tx.Clone()
	if _, err := txs.Set(transactionID, t); err != nil {
		return nil, err
	}
	s.cache.Put(t)
	s.logger.Info("transaction updated", zap.String("ledger", ledgerID), zap.String("transaction", transactionID))
	return t, nil
}

// DeleteTransaction removes a transaction. Editor or owner.
func (s *Service) DeleteTransaction(ctx context.Context, userID, ledgerID, transactionID string) error {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return err
	}
	txs, err := s.table(types.TransactionsTable)
	if err != nil {
		return err
	}
	if _, err := s.ledgerTransaction(txs, ledgerID, transactionID); err != nil {
		return err
	}
	if err := txs.Delete(transactionID); err != nil {
		return err
	}
	s.cache.Remove(ledgerID, transactionID)
	s.logger.Info("transaction deleted", zap.String("ledger", ledgerID), zap.String("transaction", transactionID))
	return nil
}

// GetTransaction returns one transaction of the ledger.
func (s *Service) GetTransaction(ctx context.Context, userID, ledgerID, transactionID string) (*types.Transaction, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	txs, err := s.table(types.TransactionsTable)
	if err != nil {
		return nil, err
	}
	return s.ledgerTransaction(txs, ledgerID, transactionID)
}

// ListTransactions returns the transactions of the given months, newest
// first. Without months it lists every month that has transactions.
func (s *Service) ListTransactions(ctx context.Context, userID, ledgerID string, months ...string) ([]*types.Transaction, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	if len(months) == 0 {
		all, err := s.months(ledgerID)
		if err != nil {
			return nil, err
		}
		months = all
	}
	return s.cache.Load(ctx, ledgerID, months...)
}

// ListTransactionsBetween lists the months from..to inclusive.
func (s *Service) ListTransactionsBetween(ctx context.Context, userID, ledgerID, from, to string) ([]*types.Transaction, error) {
	months, err := types.MonthRange(from, to)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
			return nil, err
		}
		return []*types.Transaction{}, nil
	}
	return s.ListTransactions(ctx, userID, ledgerID, months...)
}

// Months lists the months of the ledger that hold transactions.
func (s *Service) Months(ctx context.Context, userID, ledgerID string) ([]string, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	return s.months(ledgerID)
}

func (s *Service) months(ledgerID string) ([]string, error) {
	if ml, ok := s.store.(monthLister); ok {
		return ml.Months(ledgerID)
	}
	return []string{types.MonthOf(s.now())}, nil
}

// ledgerTransaction loads a transaction and checks it belongs to ledgerID.
func (s *Service) ledgerTransaction(txs types.Table, ledgerID, transactionID string) (*types.Transaction, error) {
	v, err := txs.Get(transactionID)
	if err != nil {
		return nil, err
	}
	t := v.(*types.Transaction)
	if t.LedgerID != ledgerID {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, types.ErrNotFound)
	}
	return t, nil
}

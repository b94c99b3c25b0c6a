package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// ImportTransactions records new categories and transactions of a ledger
// in one SQLite transaction: either every row is stored or none is. Each
// touched month partition is written once. Categories must come parents
// first; nodes the ledger already has are skipped. It returns the number of
// categories created and fills in the IDs and timestamps of the rows.
func (b *Backend) ImportTransactions(ledgerID string, categories []*types.Category, txs []*types.Transaction) (int, error) {
	if ledgerID == "" {
		return 0, types.ErrInvalidID
	}
	for _, c := range categories {
		c.LedgerID = ledgerID
		c.Category1 = strings.TrimSpace(c.Category1)
		c.Category2 = strings.TrimSpace(c.Category2)
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}
	for i, t := range txs {
		if t == nil {
			return 0, types.ErrInvalidData
		}
		t.LedgerID = ledgerID
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		t.Date = types.Day(t.Date)
		t.Category1 = strings.TrimSpace(t.Category1)
		t.Category2 = strings.TrimSpace(t.Category2)
	}

	if err := b.lockWrite(); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()

	if err := b.requireLedger(ledgerID); err != nil {
		return 0, err
	}
	s, err := b.sealerFor(ledgerID)
	if err != nil {
		return 0, err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	created := 0
	for _, c := range categories {
		ok, err := insertCategory(tx, c)
		if err != nil {
			return 0, err
		}
		if ok {
			created++
		}
	}

	now := b.timestamp()
	months := make(map[string]bool)
	for _, t := range txs {
		t.TransactionID = generateUUID()
		t.CreatedAt = now
		t.UpdatedAt = now
		amount, err := s.decimal(t.Amount)
		if err != nil {
			return 0, fmt.Errorf("sealing amount: %w", err)
		}
		description, err := s.text(t.Description)
		if err != nil {
			return 0, fmt.Errorf("sealing description: %w", err)
		}
		memo, err := s.text(t.Memo)
		if err != nil {
			return 0, fmt.Errorf("sealing memo: %w", err)
		}
		month := t.Month()
		_, err = tx.Exec("INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.TransactionID, ledgerID, month, t.Type, t.Date.Format(types.DateLayout), amount, t.Category1,
			t.Category2, t.Payment, description, memo, t.CreatedBy, formatTime(now), formatTime(now))
		if err != nil {
			return 0, fmt.Errorf("persisting transaction: %w", err)
		}
		months[month] = true
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}

	if created > 0 {
		if err := b.persistFlat(categoriesSpec); err != nil {
			return created, err
		}
	}
	ordered := make([]string, 0, len(months))
	for m := range months {
		ordered = append(ordered, m)
	}
	sort.Strings(ordered)
	for _, m := range ordered {
		if err := b.persistMonth(ledgerID, m); err != nil {
			return created, err
		}
	}
	return created, nil
}

// insertCategory adds c inside tx unless the ledger already has the node.
func insertCategory(tx *sql.Tx, c *types.Category) (bool, error) {
	var id string
	err := tx.QueryRow("SELECT category_id FROM categories WHERE ledger_id = ? AND type = ? AND category1 = ? AND category2 = ?",
		c.LedgerID, c.Type, c.Category1, c.Category2).Scan(&id)
	if err == nil {
		c.CategoryID = id
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("checking category uniqueness: %w", err)
	}
	if !c.IsTopLevel() {
		err := tx.QueryRow(
			"SELECT category_id FROM categories WHERE ledger_id = ? AND type = ? AND category1 = ? AND category2 = ''",
			c.LedgerID, c.Type, c.Category1).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("parent %q not found: %w", c.Category1, types.ErrInvalidCategory)
		}
		if err != nil {
			return false, fmt.Errorf("checking parent category: %w", err)
		}
	}
	if c.Ordinal <= 0 {
		if c.Ordinal, err = nextOrdinal(tx, c); err != nil {
			return false, err
		}
	}
	c.CategoryID = generateUUID()
	_, err = tx.Exec("INSERT INTO categories ("+categoryColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		c.CategoryID, c.LedgerID, c.Type, c.Category1, c.Category2, c.Ordinal)
	if err != nil {
		return false, fmt.Errorf("persisting category: %w", err)
	}
	return true, nil
}

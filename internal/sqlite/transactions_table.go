package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*transactionsTable)(nil)

type transactionsTable struct {
	backend *Backend
}

const transactionColumns = "transaction_id, ledger_id, month, type, date, amount, category1, category2, payment, " +
	"description, memo, created_by, created_at, updated_at"

// txRow is a transaction as stored, before sensitive fields are opened.
type txRow struct {
	tx                   types.Transaction
	month, date, amount  string
	createdAt, updatedAt string
}

func scanTxRow(row rowScanner) (*txRow, error) {
	var r txRow
	t := &r.tx
	err := row.Scan(&t.TransactionID, &t.LedgerID, &r.month, &t.Type, &r.date, &r.amount, &t.Category1,
		&t.Category2, &t.Payment, &t.Description, &t.Memo, &t.CreatedBy, &r.createdAt, &r.updatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// hydrate opens the sensitive fields and returns the transaction.
func (r *txRow) hydrate(o opener) (*types.Transaction, error) {
	t := r.tx
	amount, err := o.decimal(r.amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", t.TransactionID, err)
	}
	t.Amount = amount
	t.Description = o.text(t.Description)
	t.Memo = o.text(t.Memo)
	t.Date, _ = time.Parse(types.DateLayout, r.date)
	t.CreatedAt = parseTime(r.createdAt)
	t.UpdatedAt = parseTime(r.updatedAt)
	return &t, nil
}

// Get retrieves a transaction by ID.
func (tt *transactionsTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := tt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	r, err := scanTxRow(b.db.QueryRow("SELECT "+transactionColumns+" FROM transactions WHERE transaction_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return r.hydrate(b.openerFor(r.tx.LedgerID))
}

// Set creates or updates a transaction and rewrites the affected month
// partitions. Moving a transaction to another month rewrites both months.
// The ledger, CreatedBy and CreatedAt of an existing transaction are kept.
func (tt *transactionsTable) Set(id string, data any) (string, error) {
	t, ok := data.(*types.Transaction)
	if !ok || t == nil {
		return "", types.ErrInvalidData
	}
	if err := t.Validate(); err != nil {
		return "", err
	}
	t.Date = types.Day(t.Date)
	t.Category1 = strings.TrimSpace(t.Category1)
	t.Category2 = strings.TrimSpace(t.Category2)

	b := tt.backend
	if err := b.lockWrite(); err != nil {
		return "", err
	}
	defer b.mu.Unlock()

	var existing *txRow
	if id != "" {
		r, err := scanTxRow(b.db.QueryRow("SELECT "+transactionColumns+" FROM transactions WHERE transaction_id = ?", id))
		switch {
		case err == nil:
			existing = r
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("checking transaction existence: %w", err)
		}
	}

	now := b.timestamp()
	if existing != nil {
		t.LedgerID = existing.tx.LedgerID
		t.CreatedBy = existing.tx.CreatedBy
		t.CreatedAt = parseTime(existing.createdAt)
	} else {
		if err := b.requireLedger(t.LedgerID); err != nil {
			return "", err
		}
		if id == "" {
			id = generateUUID()
		}
		t.CreatedAt = now
	}
	t.TransactionID = id
	t.UpdatedAt = now

	s, err := b.sealerFor(t.LedgerID)
	if err != nil {
		return "", err
	}
	amount, err := s.decimal(t.Amount)
	if err != nil {
		return "", fmt.Errorf("sealing amount: %w", err)
	}
	description, err := s.text(t.Description)
	if err != nil {
		return "", fmt.Errorf("sealing description: %w", err)
	}
	memo, err := s.text(t.Memo)
	if err != nil {
		return "", fmt.Errorf("sealing memo: %w", err)
	}

	month := t.Month()
	_, err = b.db.Exec("INSERT OR REPLACE INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, t.LedgerID, month, t.Type, t.Date.Format(types.DateLayout), amount, t.Category1, t.Category2,
		t.Payment, description, memo, t.CreatedBy, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("persisting transaction: %w", err)
	}

	if existing != nil && existing.month != month {
		if err := b.persistMonth(t.LedgerID, existing.month); err != nil {
			return "", err
		}
	}
	return id, b.persistMonth(t.LedgerID, month)
}

// Delete removes a transaction and rewrites its month partition.
func (tt *transactionsTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := tt.backend
	if err := b.lockWrite(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	var ledgerID, month string
	err := b.db.QueryRow("SELECT ledger_id, month FROM transactions WHERE transaction_id = ?", id).Scan(&ledgerID, &month)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("getting transaction %s: %w", id, err)
	}
	if _, err := b.db.Exec("DELETE FROM transactions WHERE transaction_id = ?", id); err != nil {
		return fmt.Errorf("deleting transaction %s: %w", id, err)
	}
	return b.persistMonth(ledgerID, month)
}

// Fetch returns transactions ordered by date, newest first.
//
// Filters: ledger_id, month (a YYYY-MM string or a []string of them), type,
// category1, from and to (inclusive dates as YYYY-MM-DD or time.Time),
// limit and offset.
func (tt *transactionsTable) Fetch(filter map[string]any) ([]any, error) {
	err := checkFilterKeys(filter, "ledger_id", "month", "type", "category1", "from", "to", "limit", "offset")
	if err != nil {
		return nil, err
	}
	var w whereClause
	if err := addStringFilters(&w, filter, "ledger_id", "type", "category1"); err != nil {
		return nil, err
	}
	months, ok, err := filterStrings(filter, "month")
	if err != nil {
		return nil, err
	}
	if ok {
		for _, m := range months {
			if !types.ValidMonth(m) {
				return nil, fmt.Errorf("month %q: %w", m, types.ErrInvalidFilter)
			}
		}
		w.in("month", months)
	}
	for key, op := range map[string]string{"from": ">=", "to": "<="} {
		d, ok, err := filterDate(filter, key)
		if err != nil {
			return nil, err
		}
		if ok {
			w.add("date "+op+" ?", d)
		}
	}

	query := "SELECT " + transactionColumns + " FROM transactions" + w.String() +
		" ORDER BY date DESC, created_at DESC, transaction_id DESC"
	limit, hasLimit, err := filterInt(filter, "limit")
	if err != nil {
		return nil, err
	}
	offset, hasOffset, err := filterInt(filter, "offset")
	if err != nil {
		return nil, err
	}
	if hasLimit || hasOffset {
		if !hasLimit {
			limit = -1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}

	b := tt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	raw, err := queryTxRows(b.db, query, w.args...)
	if err != nil {
		return nil, err
	}
	openers := make(map[string]opener)
	results := make([]any, 0, len(raw))
	for _, r := range raw {
		o, ok := openers[r.tx.LedgerID]
		if !ok {
			o = b.openerFor(r.tx.LedgerID)
			openers[r.tx.LedgerID] = o
		}
		t, err := r.hydrate(o)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, nil
}

// queryTxRows reads every matching row before any key lookup happens; the
// database allows a single connection.
func queryTxRows(q queryer, query string, args ...any) ([]*txRow, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching transactions: %w", err)
	}
	defer rows.Close()

	var raw []*txRow
	for rows.Next() {
		r, err := scanTxRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		raw = append(raw, r)
	}
	return raw, rows.Err()
}

// filterDate accepts a YYYY-MM-DD string or a time.Time.
func filterDate(filter map[string]any, key string) (string, bool, error) {
	v, ok := filter[key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch tv := v.(type) {
	case time.Time:
		return tv.Format(types.DateLayout), true, nil
	case string:
		if _, err := time.Parse(types.DateLayout, tv); err != nil {
			return "", false, fmt.Errorf("filter %q: %w", key, types.ErrInvalidFilter)
		}
		return tv, true, nil
	default:
		return "", false, fmt.Errorf("filter %q must be a date: %w", key, types.ErrInvalidFilter)
	}
}

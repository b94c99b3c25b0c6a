package sqlite

import (
	"fmt"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// sealedColumns lists the sensitive columns of each table holding ledger
// data. Their values are sealed with the ledger key.
var sealedColumns = []struct {
	spec    tableSpec
	columns []string
}{
	{transactionsSpec, []string{"amount", "description", "memo"}},
	{assetsSpec, []string{"name", "balance", "memo"}},
	{assetMutationsSpec, []string{"delta", "balance", "note"}},
}

// EncryptLedger seals every sensitive value of a ledger that is still
// plaintext, regardless of Config.EncryptFields, and returns the number of
// rows it changed. Values already sealed with the ledger key are left
// alone, so running it twice changes nothing the second time.
func (b *Backend) EncryptLedger(ledgerID string) (int, error) {
	if err := b.lockWrite(); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()

	if err := b.requireLedger(ledgerID); err != nil {
		return 0, err
	}
	c, err := b.cipherFor(ledgerID)
	if err != nil {
		return 0, err
	}

	type update struct {
		query string
		args  []any
		month string
	}
	var updates []update
	for _, sc := range sealedColumns {
		cols := sc.columns
		query := fmt.Sprintf("SELECT %s, %s, %s, %s", sc.spec.key, cols[0], cols[1], cols[2])
		if sc.spec.table == transactionsSpec.table {
			query += ", month"
		} else {
			query += ", ''"
		}
		query += " FROM " + sc.spec.table + " WHERE ledger_id = ?"

		rows, err := b.db.Query(query, ledgerID)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", sc.spec.table, err)
		}
		for rows.Next() {
			var id, month string
			vals := make([]string, 3)
			if err := rows.Scan(&id, &vals[0], &vals[1], &vals[2], &month); err != nil {
				rows.Close()
				return 0, fmt.Errorf("scanning %s: %w", sc.spec.table, err)
			}
			changed := false
			for i, v := range vals {
				if v == "" || c.Sealed(v) {
					continue
				}
				sealed, err := c.Encrypt(v)
				if err != nil {
					rows.Close()
					return 0, err
				}
				vals[i] = sealed
				changed = true
			}
			if !changed {
				continue
			}
			updates = append(updates, update{
				query: fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ? WHERE %s = ?",
					sc.spec.table, cols[0], cols[1], cols[2], sc.spec.key),
				args:  []any{vals[0], vals[1], vals[2], id},
				month: month,
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, err
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := b.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	months := make(map[string]bool)
	for _, u := range updates {
		if _, err := tx.Exec(u.query, u.args...); err != nil {
			return 0, fmt.Errorf("sealing row: %w", err)
		}
		if u.month != "" {
			months[u.month] = true
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing encryption: %w", err)
	}

	for m := range months {
		if err := b.persistMonth(ledgerID, m); err != nil {
			return 0, err
		}
	}
	if err := b.persistFlat(assetsSpec); err != nil {
		return 0, err
	}
	if err := b.persistFlat(assetMutationsSpec); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// Months returns the months, oldest first, in which a ledger has
// transactions.
func (b *Backend) Months(ledgerID string) ([]string, error) {
	if ledgerID == "" {
		return nil, types.ErrInvalidID
	}
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT DISTINCT month FROM transactions WHERE ledger_id = ? ORDER BY month", ledgerID)
	if err != nil {
		return nil, fmt.Errorf("listing months: %w", err)
	}
	defer rows.Close()

	months := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning month: %w", err)
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mesh-intelligence/homebook/internal/fieldcrypt"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*ledgersTable)(nil)

type ledgersTable struct {
	backend *Backend
}

const ledgerColumns = "ledger_id, name, owner_id, currency, encryption_key, created_at, updated_at"

// Get retrieves a ledger by ID.
func (lt *ledgersTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := lt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	l, err := scanLedger(b.db.QueryRow("SELECT "+ledgerColumns+" FROM ledgers WHERE ledger_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting ledger %s: %w", id, err)
	}
	return l, nil
}

// Set creates or updates a ledger. Creating a ledger generates its
// encryption key and seeds the default category tree. The key and CreatedAt
// of an existing ledger never change.
func (lt *ledgersTable) Set(id string, data any) (string, error) {
	l, ok := data.(*types.Ledger)
	if !ok || l == nil {
		return "", types.ErrInvalidData
	}
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return "", types.ErrInvalidName
	}
	if l.OwnerID == "" {
		return "", fmt.Errorf("owner_id: %w", types.ErrInvalidData)
	}
	if l.Currency == "" {
		l.Currency = types.DefaultCurrency
	}
	l.Currency = strings.ToUpper(l.Currency)
	if !types.ValidCurrency(l.Currency) {
		return "", types.ErrInvalidCurrency
	}

	b := lt.backend
	if err := b.lockWrite(); err != nil {
		return "", err
	}
	defer b.mu.Unlock()

	now := b.timestamp()
	var existing *types.Ledger
	if id != "" {
		cur, err := scanLedger(b.db.QueryRow("SELECT "+ledgerColumns+" FROM ledgers WHERE ledger_id = ?", id))
		switch {
		case err == nil:
			existing = cur
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("checking ledger existence: %w", err)
		}
	}

	if existing != nil {
		l.LedgerID = id
		l.EncryptionKey = existing.EncryptionKey
		l.CreatedAt = existing.CreatedAt
		l.UpdatedAt = now
		_, err := b.db.Exec(
			"UPDATE ledgers SET name = ?, owner_id = ?, currency = ?, updated_at = ? WHERE ledger_id = ?",
			l.Name, l.OwnerID, l.Currency, formatTime(now), id)
		if err != nil {
			return "", fmt.Errorf("updating ledger: %w", err)
		}
		return id, b.persistFlat(ledgersSpec)
	}

	if id == "" {
		id = generateUUID()
	}
	if _, err := fieldcrypt.NewCipher(l.EncryptionKey); err != nil {
		key, err := fieldcrypt.GenerateKey()
		if err != nil {
			return "", fmt.Errorf("generating ledger key: %w", err)
		}
		l.EncryptionKey = key
	}
	l.LedgerID = id
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := b.db.Exec("INSERT INTO ledgers ("+ledgerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, l.Name, l.OwnerID, l.Currency, l.EncryptionKey, formatTime(now), formatTime(now))
	if err != nil {
		return "", fmt.Errorf("inserting ledger: %w", err)
	}
	if err := b.seedCategories(id); err != nil {
		return "", err
	}
	if _, err := b.keys.Put(id, l.EncryptionKey); err != nil {
		return "", err
	}
	if err := b.persistFlat(ledgersSpec); err != nil {
		return "", err
	}
	return id, b.persistFlat(categoriesSpec)
}

// Delete removes a ledger together with its members, invitations,
// categories, assets, asset mutations and transactions.
func (lt *ledgersTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := lt.backend
	if err := b.lockWrite(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	if ok, err := b.ledgerExists(id); err != nil {
		return err
	} else if !ok {
		return types.ErrNotFound
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "asset_mutations", "assets", "categories", "invitations", "members", "ledgers"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE ledger_id = ?", id); err != nil {
			return fmt.Errorf("deleting ledger %s from %s: %w", id, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger delete: %w", err)
	}

	b.keys.Forget(id)
	for _, spec := range flatSpecs {
		if err := b.persistFlat(spec); err != nil {
			return err
		}
	}
	dir := ledgerDir(b.dataDir, id)
	return b.persist(dir, func() error {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
		return nil
	})
}

// Fetch returns ledgers ordered by creation time. Filters: owner_id, and
// member_id which selects the ledgers a user belongs to.
func (lt *ledgersTable) Fetch(filter map[string]any) ([]any, error) {
	if err := checkFilterKeys(filter, "owner_id", "member_id"); err != nil {
		return nil, err
	}
	var w whereClause
	if err := addStringFilters(&w, filter, "owner_id"); err != nil {
		return nil, err
	}
	if user, ok, err := filterString(filter, "member_id"); err != nil {
		return nil, err
	} else if ok {
		w.add("ledger_id IN (SELECT ledger_id FROM members WHERE user_id = ?)", user)
	}

	b := lt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT "+ledgerColumns+" FROM ledgers"+w.String()+" ORDER BY created_at, ledger_id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching ledgers: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger: %w", err)
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func scanLedger(row rowScanner) (*types.Ledger, error) {
	var (
		l                    types.Ledger
		createdAt, updatedAt string
	)
	if err := row.Scan(&l.LedgerID, &l.Name, &l.OwnerID, &l.Currency, &l.EncryptionKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

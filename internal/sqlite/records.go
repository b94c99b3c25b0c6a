package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// transactionsDir holds the month partitions, one directory per ledger.
const transactionsDir = "transactions"

// timeLayout is the fixed-width UTC layout used for stored timestamps so that
// string ordering in SQLite matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// tableSpec describes how a SQLite table maps to JSONL records.
type tableSpec struct {
	table   string
	file    string // relative to DataDir; empty for month-partitioned tables
	key     string
	columns []string
	ints    map[string]bool
	orderBy string
}

var (
	ledgersSpec = tableSpec{
		table:   "ledgers",
		file:    "ledgers.jsonl",
		key:     "ledger_id",
		columns: []string{"ledger_id", "name", "owner_id", "currency", "encryption_key", "created_at", "updated_at"},
		orderBy: "created_at, ledger_id",
	}
	membersSpec = tableSpec{
		table:   "members",
		file:    "members.jsonl",
		key:     "member_id",
		columns: []string{"member_id", "ledger_id", "user_id", "role", "joined_at"},
		orderBy: "ledger_id, joined_at, member_id",
	}
	invitationsSpec = tableSpec{
		table: "invitations",
		file:  "invitations.jsonl",
		key:   "invitation_id",
		columns: []string{"invitation_id", "ledger_id", "email", "role", "code", "invited_by", "state",
			"accepted_by", "created_at", "expires_at"},
		orderBy: "ledger_id, created_at, invitation_id",
	}
	categoriesSpec = tableSpec{
		table:   "categories",
		file:    "categories.jsonl",
		key:     "category_id",
		columns: []string{"category_id", "ledger_id", "type", "category1", "category2", "ordinal"},
		ints:    map[string]bool{"ordinal": true},
		orderBy: "ledger_id, type, ordinal, category1, category2",
	}
	assetsSpec = tableSpec{
		table: "assets",
		file:  "assets.jsonl",
		key:   "asset_id",
		columns: []string{"asset_id", "ledger_id", "kind", "name", "balance", "category1", "category2", "memo",
			"version", "last_operation", "changed_by", "created_at", "updated_at"},
		ints:    map[string]bool{"version": true},
		orderBy: "ledger_id, created_at, asset_id",
	}
	assetMutationsSpec = tableSpec{
		table: "asset_mutations",
		file:  "asset_mutations.jsonl",
		key:   "mutation_id",
		columns: []string{"mutation_id", "asset_id", "ledger_id", "version", "operation", "delta", "balance",
			"note", "changed_by", "created_at"},
		ints:    map[string]bool{"version": true},
		orderBy: "asset_id, version",
	}
	transactionsSpec = tableSpec{
		table: "transactions",
		key:   "transaction_id",
		columns: []string{"transaction_id", "ledger_id", "month", "type", "date", "amount", "category1",
			"category2", "payment", "description", "memo", "created_by", "created_at", "updated_at"},
		orderBy: "date, created_at, transaction_id",
	}
)

// flatSpecs lists the single-file tables in load order: ledgers first so
// that child rows can be related to them.
var flatSpecs = []tableSpec{
	ledgersSpec,
	membersSpec,
	invitationsSpec,
	categoriesSpec,
	assetsSpec,
	assetMutationsSpec,
}

// monthPath returns the JSONL partition of one ledger month.
func monthPath(dataDir, ledgerID, month string) string {
	return filepath.Join(dataDir, transactionsDir, ledgerID, month+".jsonl")
}

// ledgerDir returns the directory holding a ledger's month partitions.
func ledgerDir(dataDir, ledgerID string) string {
	return filepath.Join(dataDir, transactionsDir, ledgerID)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// dumpRows selects the rows of spec matching where and renders each as a
// JSON object keyed by column name.
func dumpRows(q queryer, spec tableSpec, where string, args ...any) ([]json.RawMessage, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(spec.columns, ", "), spec.table)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + spec.orderBy

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", spec.table, err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		texts := make([]sql.NullString, len(spec.columns))
		ints := make([]sql.NullInt64, len(spec.columns))
		dest := make([]any, len(spec.columns))
		for i, col := range spec.columns {
			if spec.ints[col] {
				dest[i] = &ints[i]
			} else {
				dest[i] = &texts[i]
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", spec.table, err)
		}
		obj := make(map[string]any, len(spec.columns))
		for i, col := range spec.columns {
			if spec.ints[col] {
				obj[col] = ints[i].Int64
			} else {
				obj[col] = texts[i].String
			}
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encoding %s row: %w", spec.table, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// persistFlat rewrites the JSONL file of a single-file table.
// The caller must hold b.mu.
func (b *Backend) persistFlat(spec tableSpec) error {
	return b.persist(spec.file, func() error {
		records, err := dumpRows(b.db, spec, "")
		if err != nil {
			return err
		}
		return writeJSONL(filepath.Join(b.dataDir, spec.file), records)
	})
}

// persistMonth rewrites one month partition of a ledger, removing the file
// when the month has no transactions left.
// The caller must hold b.mu.
func (b *Backend) persistMonth(ledgerID, month string) error {
	path := monthPath(b.dataDir, ledgerID, month)
	return b.persist(path, func() error {
		records, err := dumpRows(b.db, transactionsSpec, "ledger_id = ? AND month = ?", ledgerID, month)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return removeFile(path)
		}
		return writeJSONL(path, records)
	})
}

// formatTime renders t in UTC with the fixed-width layout. The zero time is
// stored as the empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp. Empty or malformed values yield the
// zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

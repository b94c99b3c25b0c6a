package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*assetMutationsTable)(nil)

// assetMutationsTable exposes the append-only asset log. Rows are written
// by assetsTable.Set only.
type assetMutationsTable struct {
	backend *Backend
}

const mutationColumns = "mutation_id, asset_id, ledger_id, version, operation, delta, balance, note, changed_by, created_at"

type mutationRow struct {
	m                       types.AssetMutation
	delta, balance, created string
}

func scanMutationRow(row rowScanner) (*mutationRow, error) {
	var r mutationRow
	m := &r.m
	err := row.Scan(&m.MutationID, &m.AssetID, &m.LedgerID, &m.Version, &m.Operation, &r.delta, &r.balance,
		&m.Note, &m.ChangedBy, &r.created)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *mutationRow) hydrate(o opener) (*types.AssetMutation, error) {
	m := r.m
	var err error
	if m.Delta, err = o.decimal(r.delta); err != nil {
		return nil, fmt.Errorf("mutation %s delta: %w", m.MutationID, err)
	}
	if m.Balance, err = o.decimal(r.balance); err != nil {
		return nil, fmt.Errorf("mutation %s balance: %w", m.MutationID, err)
	}
	m.Note = o.text(m.Note)
	m.CreatedAt = parseTime(r.created)
	return &m, nil
}

// Get retrieves a mutation by ID.
func (mt *assetMutationsTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := mt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	r, err := scanMutationRow(b.db.QueryRow("SELECT "+mutationColumns+" FROM asset_mutations WHERE mutation_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting mutation %s: %w", id, err)
	}
	return r.hydrate(b.openerFor(r.m.LedgerID))
}

// Set always fails: the log is append-only.
func (mt *assetMutationsTable) Set(string, any) (string, error) {
	return "", types.ErrReadOnlyTable
}

// Delete always fails: mutations go away only with their asset.
func (mt *assetMutationsTable) Delete(string) error {
	return types.ErrReadOnlyTable
}

// Fetch returns mutations ordered by asset and version. Filters: asset_id,
// ledger_id.
func (mt *assetMutationsTable) Fetch(filter map[string]any) ([]any, error) {
	if err := checkFilterKeys(filter, "asset_id", "ledger_id"); err != nil {
		return nil, err
	}
	var w whereClause
	if err := addStringFilters(&w, filter, "asset_id", "ledger_id"); err != nil {
		return nil, err
	}

	b := mt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT "+mutationColumns+" FROM asset_mutations"+w.String()+" ORDER BY asset_id, version", w.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching mutations: %w", err)
	}
	var raw []*mutationRow
	for rows.Next() {
		r, err := scanMutationRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning mutation: %w", err)
		}
		raw = append(raw, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]any, 0, len(raw))
	for _, r := range raw {
		m, err := r.hydrate(b.openerFor(r.m.LedgerID))
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, nil
}

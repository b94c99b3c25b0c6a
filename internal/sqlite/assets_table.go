package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*assetsTable)(nil)

type assetsTable struct {
	backend *Backend
}

const assetColumns = "asset_id, ledger_id, kind, name, balance, category1, category2, memo, version, " +
	"last_operation, changed_by, created_at, updated_at"

type assetRow struct {
	asset                types.Asset
	balance              string
	createdAt, updatedAt string
}

func scanAssetRow(row rowScanner) (*assetRow, error) {
	var r assetRow
	a := &r.asset
	err := row.Scan(&a.AssetID, &a.LedgerID, &a.Kind, &a.Name, &r.balance, &a.Category1, &a.Category2, &a.Memo,
		&a.Version, &a.LastOperation, &a.ChangedBy, &r.createdAt, &r.updatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *assetRow) hydrate(o opener) (*types.Asset, error) {
	a := r.asset
	balance, err := o.decimal(r.balance)
	if err != nil {
		return nil, fmt.Errorf("asset %s balance: %w", a.AssetID, err)
	}
	a.Balance = balance
	a.Name = o.text(a.Name)
	a.Memo = o.text(a.Memo)
	a.CreatedAt = parseTime(r.createdAt)
	a.UpdatedAt = parseTime(r.updatedAt)
	return &a, nil
}

// Get retrieves an asset by ID.
func (at *assetsTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := at.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	r, err := scanAssetRow(b.db.QueryRow("SELECT "+assetColumns+" FROM assets WHERE asset_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset %s: %w", id, err)
	}
	return r.hydrate(b.openerFor(r.asset.LedgerID))
}

// Set creates or updates an asset and appends a mutation to its log.
//
// A new asset starts at version 1 with a create mutation whose delta is the
// opening balance. Every update bumps the version; the mutation records
// delta = new balance - old balance, the operation from LastOperation
// (adjust when unset) and Asset.Note.
func (at *assetsTable) Set(id string, data any) (string, error) {
	a, ok := data.(*types.Asset)
	if !ok || a == nil {
		return "", types.ErrInvalidData
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return "", types.ErrInvalidName
	}
	if !types.ValidAssetKind(a.Kind) {
		return "", types.ErrInvalidKind
	}

	b := at.backend
	if err := b.lockWrite(); err != nil {
		return "", err
	}
	defer b.mu.Unlock()

	var existing *types.Asset
	if id != "" {
		r, err := scanAssetRow(b.db.QueryRow("SELECT "+assetColumns+" FROM assets WHERE asset_id = ?", id))
		switch {
		case err == nil:
			existing, err = r.hydrate(b.openerFor(r.asset.LedgerID))
			if err != nil {
				return "", err
			}
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("checking asset existence: %w", err)
		}
	}

	now := b.timestamp()
	delta := a.Balance
	op := types.AssetOpCreate
	if existing != nil {
		a.LedgerID = existing.LedgerID
		a.CreatedAt = existing.CreatedAt
		a.Version = existing.Version + 1
		delta = a.Balance.Sub(existing.Balance)
		op = a.LastOperation
		if op == "" || op == types.AssetOpCreate {
			op = types.AssetOpAdjust
		}
	} else {
		if err := b.requireLedger(a.LedgerID); err != nil {
			return "", err
		}
		if id == "" {
			id = generateUUID()
		}
		a.CreatedAt = now
		a.Version = 1
	}
	a.AssetID = id
	a.LastOperation = op
	a.UpdatedAt = now

	s, err := b.sealerFor(a.LedgerID)
	if err != nil {
		return "", err
	}
	sealed := make([]string, 0, 6)
	for _, f := range []func() (string, error){
		func() (string, error) { return s.text(a.Name) },
		func() (string, error) { return s.decimal(a.Balance) },
		func() (string, error) { return s.text(a.Memo) },
		func() (string, error) { return s.decimal(delta) },
		func() (string, error) { return s.decimal(a.Balance) },
		func() (string, error) { return s.text(a.Note) },
	} {
		v, err := f()
		if err != nil {
			return "", fmt.Errorf("sealing asset fields: %w", err)
		}
		sealed = append(sealed, v)
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT OR REPLACE INTO assets ("+assetColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, a.LedgerID, a.Kind, sealed[0], sealed[1], a.Category1, a.Category2, sealed[2], a.Version,
		a.LastOperation, a.ChangedBy, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("persisting asset: %w", err)
	}
	_, err = tx.Exec("INSERT INTO asset_mutations ("+mutationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		generateUUID(), id, a.LedgerID, a.Version, op, sealed[3], sealed[4], sealed[5], a.ChangedBy, formatTime(now))
	if err != nil {
		return "", fmt.Errorf("recording asset mutation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing asset: %w", err)
	}

	a.Note = ""
	if err := b.persistFlat(assetsSpec); err != nil {
		return "", err
	}
	return id, b.persistFlat(assetMutationsSpec)
}

// Delete removes an asset and its mutation log.
func (at *assetsTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := at.backend
	if err := b.lockWrite(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM assets WHERE asset_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting asset %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	if _, err := tx.Exec("DELETE FROM asset_mutations WHERE asset_id = ?", id); err != nil {
		return fmt.Errorf("deleting asset mutations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing asset delete: %w", err)
	}
	if err := b.persistFlat(assetsSpec); err != nil {
		return err
	}
	return b.persistFlat(assetMutationsSpec)
}

// Fetch returns assets in creation order. Filters: ledger_id, kind.
func (at *assetsTable) Fetch(filter map[string]any) ([]any, error) {
	if err := checkFilterKeys(filter, "ledger_id", "kind"); err != nil {
		return nil, err
	}
	var w whereClause
	if err := addStringFilters(&w, filter, "ledger_id", "kind"); err != nil {
		return nil, err
	}

	b := at.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT "+assetColumns+" FROM assets"+w.String()+" ORDER BY created_at, asset_id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching assets: %w", err)
	}
	var raw []*assetRow
	for rows.Next() {
		r, err := scanAssetRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		raw = append(raw, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]any, 0, len(raw))
	for _, r := range raw {
		a, err := r.hydrate(b.openerFor(r.asset.LedgerID))
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, nil
}

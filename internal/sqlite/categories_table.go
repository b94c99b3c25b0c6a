package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*categoriesTable)(nil)

type categoriesTable struct {
	backend *Backend
}

const categoryColumns = "category_id, ledger_id, type, category1, category2, ordinal"

// categoryOrder sorts a tree depth-first: top-level nodes by ordinal, each
// followed by its children by ordinal.
const categoryOrder = ` ORDER BY c.ledger_id, c.type,
    COALESCE((SELECT p.ordinal FROM categories p WHERE p.ledger_id = c.ledger_id AND p.type = c.type
        AND p.category1 = c.category1 AND p.category2 = ''), 0),
    c.category1, c.category2 <> '', c.ordinal, c.category2`

// Get retrieves a category by ID.
func (ct *categoriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := ct.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	c, err := scanCategory(b.db.QueryRow("SELECT "+categoryColumns+" FROM categories WHERE category_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting category %s: %w", id, err)
	}
	return c, nil
}

// Set creates or updates a category node.
//
// A category2 node requires its category1 parent. Nodes are unique per
// (ledger, type, category1, category2). A zero Ordinal on create places the
// node after its siblings. Renaming a top-level node renames the category1
// of its children too. Ledger and type never change.
func (ct *categoriesTable) Set(id string, data any) (string, error) {
	c, ok := data.(*types.Category)
	if !ok || c == nil {
		return "", types.ErrInvalidData
	}
	c.Category1 = strings.TrimSpace(c.Category1)
	c.Category2 = strings.TrimSpace(c.Category2)

	b := ct.backend
	if err := b.lockWrite(); err != nil {
		return "", err
	}
	defer b.mu.Unlock()

	var existing *types.Category
	if id != "" {
		cur, err := scanCategory(b.db.QueryRow("SELECT "+categoryColumns+" FROM categories WHERE category_id = ?", id))
		switch {
		case err == nil:
			existing = cur
			c.LedgerID, c.Type = cur.LedgerID, cur.Type
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("checking category existence: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return "", err
	}
	if existing == nil {
		if err := b.requireLedger(c.LedgerID); err != nil {
			return "", err
		}
	}
	if existing != nil && existing.IsTopLevel() != c.IsTopLevel() {
		return "", fmt.Errorf("cannot change category level: %w", types.ErrInvalidCategory)
	}

	if !c.IsTopLevel() {
		var parent string
		err := b.db.QueryRow(
			"SELECT category_id FROM categories WHERE ledger_id = ? AND type = ? AND category1 = ? AND category2 = ''",
			c.LedgerID, c.Type, c.Category1).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("parent %q not found: %w", c.Category1, types.ErrInvalidCategory)
		}
		if err != nil {
			return "", fmt.Errorf("checking parent category: %w", err)
		}
	}

	var dup string
	err := b.db.QueryRow(
		"SELECT category_id FROM categories WHERE ledger_id = ? AND type = ? AND category1 = ? AND category2 = ? AND category_id <> ?",
		c.LedgerID, c.Type, c.Category1, c.Category2, id).Scan(&dup)
	if err == nil {
		return "", types.ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("checking category uniqueness: %w", err)
	}

	if c.Ordinal <= 0 {
		if existing != nil {
			c.Ordinal = existing.Ordinal
		} else if c.Ordinal, err = nextOrdinal(b.db, c); err != nil {
			return "", err
		}
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if existing != nil {
		_, err = tx.Exec("UPDATE categories SET category1 = ?, category2 = ?, ordinal = ? WHERE category_id = ?",
			c.Category1, c.Category2, c.Ordinal, id)
		if err == nil && existing.IsTopLevel() && existing.Category1 != c.Category1 {
			_, err = tx.Exec(
				"UPDATE categories SET category1 = ? WHERE ledger_id = ? AND type = ? AND category1 = ? AND category2 <> ''",
				c.Category1, c.LedgerID, c.Type, existing.Category1)
		}
	} else {
		if id == "" {
			id = generateUUID()
		}
		_, err = tx.Exec("INSERT INTO categories ("+categoryColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			id, c.LedgerID, c.Type, c.Category1, c.Category2, c.Ordinal)
	}
	if err != nil {
		return "", fmt.Errorf("persisting category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing category: %w", err)
	}
	c.CategoryID = id
	return id, b.persistFlat(categoriesSpec)
}

// nextOrdinal returns one past the highest ordinal among the siblings of c.
func nextOrdinal(q queryRower, c *types.Category) (int, error) {
	var highest sql.NullInt64
	var err error
	if c.IsTopLevel() {
		err = q.QueryRow("SELECT MAX(ordinal) FROM categories WHERE ledger_id = ? AND type = ? AND category2 = ''",
			c.LedgerID, c.Type).Scan(&highest)
	} else {
		err = q.QueryRow("SELECT MAX(ordinal) FROM categories WHERE ledger_id = ? AND type = ? AND category1 = ? AND category2 <> ''",
			c.LedgerID, c.Type, c.Category1).Scan(&highest)
	}
	if err != nil {
		return 0, fmt.Errorf("computing ordinal: %w", err)
	}
	return int(highest.Int64) + 1, nil
}

// Delete removes a category node. Deleting a top-level node removes its
// children as well.
func (ct *categoriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := ct.backend
	if err := b.lockWrite(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	c, err := scanCategory(b.db.QueryRow("SELECT "+categoryColumns+" FROM categories WHERE category_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("getting category %s: %w", id, err)
	}

	if c.IsTopLevel() {
		_, err = b.db.Exec("DELETE FROM categories WHERE ledger_id = ? AND type = ? AND category1 = ?",
			c.LedgerID, c.Type, c.Category1)
	} else {
		_, err = b.db.Exec("DELETE FROM categories WHERE category_id = ?", id)
	}
	if err != nil {
		return fmt.Errorf("deleting category %s: %w", id, err)
	}
	return b.persistFlat(categoriesSpec)
}

// Fetch returns category nodes in tree order. Filters: ledger_id, type,
// category1.
func (ct *categoriesTable) Fetch(filter map[string]any) ([]any, error) {
	if err := checkFilterKeys(filter, "ledger_id", "type", "category1"); err != nil {
		return nil, err
	}
	var w whereClause
	for _, key := range []string{"ledger_id", "type", "category1"} {
		v, ok, err := filterString(filter, key)
		if err != nil {
			return nil, err
		}
		if ok {
			w.add("c."+key+" = ?", v)
		}
	}

	b := ct.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT c.category_id, c.ledger_id, c.type, c.category1, c.category2, c.ordinal FROM categories c"+
		w.String()+categoryOrder, w.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanCategory(row rowScanner) (*types.Category, error) {
	var c types.Category
	if err := row.Scan(&c.CategoryID, &c.LedgerID, &c.Type, &c.Category1, &c.Category2, &c.Ordinal); err != nil {
		return nil, err
	}
	return &c, nil
}

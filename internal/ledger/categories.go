package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// CategoryNode is a top-level category with its children.
type CategoryNode struct {
	*types.Category
	Children []*types.Category `json:"children,omitempty"`
}

// AddCategory adds a node to the ledger's tree of typ. An empty category2
// adds a top-level node; otherwise category1 must already exist.
func (s *Service) AddCategory(ctx context.Context, userID, ledgerID, typ, category1, category2 string) (*types.Category, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	cats, err := s.table(types.CategoriesTable)
	if err != nil {
		return nil, err
	}
	c := &types.Category{LedgerID: ledgerID, Type: typ, Category1: category1, Category2: category2}
	if _, err := cats.Set("", c); err != nil {
		return nil, err
	}
	return c, nil
}

// RenameCategory renames a node. Renaming a top-level node carries its
// children along.
func (s *Service) RenameCategory(ctx context.Context, userID, ledgerID, categoryID, name string) (*types.Category, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.ErrInvalidName
	}
	cats, err := s.table(types.CategoriesTable)
	if err != nil {
		return nil, err
	}
	c, err := ledgerCategory(cats, ledgerID, categoryID)
	if err != nil {
		return nil, err
	}
	if c.IsTopLevel() {
		c.Category1 = name
	} else {
		c.Category2 = name
	}
	if _, err := cats.Set(categoryID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes a node; a top-level node takes its children with
// it. Recorded transactions keep their category names.
func (s *Service) DeleteCategory(ctx context.Context, userID, ledgerID, categoryID string) error {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return err
	}
	cats, err := s.table(types.CategoriesTable)
	if err != nil {
		return err
	}
	if _, err := ledgerCategory(cats, ledgerID, categoryID); err != nil {
		return err
	}
	return cats.Delete(categoryID)
}

// ListCategories returns the nodes of one type in tree order, or of every
// type when typ is empty.
func (s *Service) ListCategories(ctx context.Context, userID, ledgerID, typ string) ([]*types.Category, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	if typ != "" && !types.ValidCategoryType(typ) {
		return nil, types.ErrInvalidCategoryType
	}
	return s.categories(ledgerID, typ)
}

// CategoryTree returns the tree of one type.
func (s *Service) CategoryTree(ctx context.Context, userID, ledgerID, typ string) ([]CategoryNode, error) {
	if typ == "" {
		return nil, types.ErrInvalidCategoryType
	}
	flat, err := s.ListCategories(ctx, userID, ledgerID, typ)
	if err != nil {
		return nil, err
	}
	var tree []CategoryNode
	index := make(map[string]int)
	for _, c := range flat {
		if c.IsTopLevel() {
			index[c.Category1] = len(tree)
			tree = append(tree, CategoryNode{Category: c})
			continue
		}
		if i, ok := index[c.Category1]; ok {
			tree[i].Children = append(tree[i].Children, c)
		}
	}
	return tree, nil
}

func (s *Service) categories(ledgerID, typ string) ([]*types.Category, error) {
	cats, err := s.table(types.CategoriesTable)
	if err != nil {
		return nil, err
	}
	filter := map[string]any{"ledger_id": ledgerID}
	if typ != "" {
		filter["type"] = typ
	}
	rows, err := cats.Fetch(filter)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Category, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.Category)
	}
	return out, nil
}

// missingCategories returns the category nodes that the transactions use
// but the ledger lacks, parents before children. Payments become top-level
// payment nodes.
func (s *Service) missingCategories(ledgerID string, txs []*types.Transaction) ([]*types.Category, error) {
	existing, err := s.categories(ledgerID, "")
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Type+"/"+c.Path()] = true
	}

	var missing []*types.Category
	add := func(typ, c1, c2 string) {
		node := &types.Category{LedgerID: ledgerID, Type: typ, Category1: c1, Category2: c2}
		key := typ + "/" + node.Path()
		if have[key] {
			return
		}
		have[key] = true
		missing = append(missing, node)
	}
	for _, tx := range txs {
		add(tx.Type, tx.Category1, "")
		if tx.Category2 != "" {
			add(tx.Type, tx.Category1, tx.Category2)
		}
		if tx.Payment != "" {
			add(types.CategoryPayment, tx.Payment, "")
		}
	}
	return missing, nil
}

func ledgerCategory(cats types.Table, ledgerID, categoryID string) (*types.Category, error) {
	v, err := cats.Get(categoryID)
	if err != nil {
		return nil, err
	}
	c := v.(*types.Category)
	if c.LedgerID != ledgerID {
		return nil, fmt.Errorf("category %s: %w", categoryID, types.ErrNotFound)
	}
	return c, nil
}

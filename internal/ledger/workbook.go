package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/internal/spreadsheet"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// ImportReport describes a completed import.
type ImportReport struct {
	Imported          int      `json:"imported"`
	Skipped           int      `json:"skipped"`
	CategoriesCreated int      `json:"categories_created"`
	Sheets            []string `json:"sheets"`
	Months            []string `json:"months"`
}

// ExportWorkbook writes the given months, or every month when none are
// given, with the ledger's assets and categories as an xlsx workbook.
func (s *Service) ExportWorkbook(ctx context.Context, userID, ledgerID string, w io.Writer, months ...string) error {
	a, err := s.authorize(userID, ledgerID, types.RoleViewer)
	if err != nil {
		return err
	}
	if len(months) == 0 {
		if months, err = s.months(ledgerID); err != nil {
			return err
		}
	}
	txs, err := s.cache.Load(ctx, ledgerID, months...)
	if err != nil {
		return err
	}
	assets, err := s.assets(ledgerID)
	if err != nil {
		return err
	}
	cats, err := s.categories(ledgerID, "")
	if err != nil {
		return err
	}
	return spreadsheet.Export(w, spreadsheet.ExportData{
		Currency:     a.ledger.Currency,
		Transactions: txs,
		Assets:       assets,
		Categories:   cats,
	})
}

// ImportWorkbook validates a workbook and records its transactions. Nothing
// is recorded unless every row is valid; row problems come back as a
// *spreadsheet.ValidationError. Categories the rows use are created.
func (s *Service) ImportWorkbook(ctx context.Context, userID, ledgerID string, r io.Reader) (*ImportReport, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	res, err := spreadsheet.Import(r)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, userID, ledgerID, res)
}

// MigrateLegacy imports a one-off spreadsheet described by layout.
func (s *Service) MigrateLegacy(ctx context.Context, userID, ledgerID string, r io.Reader, layout spreadsheet.Layout) (*ImportReport, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	res, err := spreadsheet.Legacy(r, layout)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, userID, ledgerID, res)
}

// bulkImporter is implemented by stores that record a batch of categories
// and transactions atomically.
type bulkImporter interface {
	ImportTransactions(ledgerID string, categories []*types.Category, txs []*types.Transaction) (int, error)
}

// record stores the rows of a validated workbook all-or-nothing. A context
// cancelled once writing has begun does not stop it halfway.
func (s *Service) record(ctx context.Context, userID, ledgerID string, res *spreadsheet.ImportResult) (*ImportReport, error) {
	report := &ImportReport{Skipped: res.Skipped, Sheets: res.Sheets, Months: []string{}}
	for _, t := range res.Transactions {
		t.LedgerID = ledgerID
		t.CreatedBy = userID
	}
	missing, err := s.missingCategories(ledgerID, res.Transactions)
	if err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if bulk, ok := s.store.(bulkImporter); ok {
		created, err := bulk.ImportTransactions(ledgerID, missing, res.Transactions)
		report.CategoriesCreated = created
		if err != nil {
			s.cache.Invalidate(ledgerID)
			return report, fmt.Errorf("recording workbook: %w", err)
		}
	} else if report.CategoriesCreated, err = s.recordRows(ledgerID, missing, res.Transactions); err != nil {
		return report, err
	}

	seen := make(map[string]bool)
	for _, t := range res.Transactions {
		s.cache.Put(t)
		report.Imported++
		if m := t.Month(); !seen[m] {
			seen[m] = true
			report.Months = append(report.Months, m)
		}
	}
	s.logger.Info("workbook imported", zap.String("ledger", ledgerID), zap.Int("transactions", report.Imported),
		zap.Int("categories", report.CategoriesCreated))
	return report, nil
}

// recordRows writes rows one at a time through the tables and removes what
// it wrote when a row fails.
func (s *Service) recordRows(ledgerID string, categories []*types.Category, rows []*types.Transaction) (int, error) {
	cats, err := s.table(types.CategoriesTable)
	if err != nil {
		return 0, err
	}
	txs, err := s.table(types.TransactionsTable)
	if err != nil {
		return 0, err
	}

	var catIDs, txIDs []string
	undo := func(cause error) error {
		for i := len(txIDs) - 1; i >= 0; i-- {
			if err := txs.Delete(txIDs[i]); err != nil && !errors.Is(err, types.ErrNotFound) {
				s.logger.Warn("rolling back imported transaction", zap.String("transaction", txIDs[i]), zap.Error(err))
			}
		}
		for i := len(catIDs) - 1; i >= 0; i-- {
			if err := cats.Delete(catIDs[i]); err != nil && !errors.Is(err, types.ErrNotFound) {
				s.logger.Warn("rolling back imported category", zap.String("category", catIDs[i]), zap.Error(err))
			}
		}
		return cause
	}

	for _, c := range categories {
		id, err := cats.Set("", c)
		if err != nil {
			return 0, undo(fmt.Errorf("creating category %s/%s: %w", c.Type, c.Path(), err))
		}
		catIDs = append(catIDs, id)
	}
	for i, t := range rows {
		id, err := txs.Set("", t)
		if err != nil {
			return 0, undo(fmt.Errorf("recording row %d: %w", i+1, err))
		}
		txIDs = append(txIDs, id)
	}
	return len(catIDs), nil
}

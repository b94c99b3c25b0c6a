package ledger

import (
	"context"
	"time"

	"github.com/mesh-intelligence/homebook/internal/summary"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// MonthlySummary totals one month of the ledger.
func (s *Service) MonthlySummary(ctx context.Context, userID, ledgerID, month string) (summary.MonthOverview, error) {
	a, err := s.authorize(userID, ledgerID, types.RoleViewer)
	if err != nil {
		return summary.MonthOverview{}, err
	}
	txs, err := s.cache.Load(ctx, ledgerID, month)
	if err != nil {
		return summary.MonthOverview{}, err
	}
	return summary.Month(month, a.ledger.Currency, txs), nil
}

// YearlySummary totals a calendar year of the ledger month by month.
func (s *Service) YearlySummary(ctx context.Context, userID, ledgerID string, year int) (summary.YearOverview, error) {
	a, err := s.authorize(userID, ledgerID, types.RoleViewer)
	if err != nil {
		return summary.YearOverview{}, err
	}
	months := make([]string, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, types.MonthOf(time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)))
	}
	txs, err := s.cache.Load(ctx, ledgerID, months...)
	if err != nil {
		return summary.YearOverview{}, err
	}
	return summary.Year(year, a.ledger.Currency, txs), nil
}

// NetWorth totals the ledger's assets.
func (s *Service) NetWorth(ctx context.Context, userID, ledgerID string) (summary.NetWorthReport, error) {
	a, err := s.authorize(userID, ledgerID, types.RoleViewer)
	if err != nil {
		return summary.NetWorthReport{}, err
	}
	assets, err := s.assets(ledgerID)
	if err != nil {
		return summary.NetWorthReport{}, err
	}
	return summary.NetWorth(a.ledger.Currency, assets), nil
}

package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// CreateAsset starts tracking an asset. Editor or owner.
func (s *Service) CreateAsset(ctx context.Context, userID, ledgerID string, asset *types.Asset) (*types.Asset, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, types.ErrInvalidData
	}
	assets, err := s.table(types.AssetsTable)
	if err != nil {
		return nil, err
	}
	a := *asset
	a.AssetID = ""
	a.LedgerID = ledgerID
	a.ChangedBy = userID
	if _, err := assets.Set("", &a); err != nil {
		return nil, err
	}
	s.logger.Info("asset created", zap.String("ledger", ledgerID), zap.String("asset", a.AssetID))
	return &a, nil
}

// Deposit adds a positive amount to an asset.
func (s *Service) Deposit(ctx context.Context, userID, ledgerID, assetID string, amount decimal.Decimal, note string) (*types.Asset, error) {
	return s.mutateAsset(userID, ledgerID, assetID, note, func(a *types.Asset) error {
		return a.Deposit(amount)
	})
}

// Withdraw subtracts a positive amount from an asset.
func (s *Service) Withdraw(ctx context.Context, userID, ledgerID, assetID string, amount decimal.Decimal, note string) (*types.Asset, error) {
	return s.mutateAsset(userID, ledgerID, assetID, note, func(a *types.Asset) error {
		return a.Withdraw(amount)
	})
}

// AdjustAsset sets an asset's balance.
func (s *Service) AdjustAsset(ctx context.Context, userID, ledgerID, assetID string, balance decimal.Decimal, note string) (*types.Asset, error) {
	return s.mutateAsset(userID, ledgerID, assetID, note, func(a *types.Asset) error {
		a.Adjust(balance)
		return nil
	})
}

// RenameAsset changes an asset's name.
func (s *Service) RenameAsset(ctx context.Context, userID, ledgerID, assetID, name string) (*types.Asset, error) {
	return s.mutateAsset(userID, ledgerID, assetID, "", func(a *types.Asset) error {
		return a.Rename(name)
	})
}

func (s *Service) mutateAsset(userID, ledgerID, assetID, note string, apply func(*types.Asset) error) (*types.Asset, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return nil, err
	}
	assets, err := s.table(types.AssetsTable)
	if err != nil {
		return nil, err
	}
	a, err := ledgerAsset(assets, ledgerID, assetID)
	if err != nil {
		return nil, err
	}
	if err := apply(a); err != nil {
		return nil, err
	}
	a.ChangedBy = userID
	a.Note = note
	if _, err := assets.Set(assetID, a); err != nil {
		return nil, err
	}
	s.logger.Info("asset changed", zap.String("ledger", ledgerID), zap.String("asset", assetID),
		zap.String("operation", a.LastOperation), zap.Int64("version", a.Version))
	return a, nil
}

// DeleteAsset removes an asset and its history. Editor or owner.
func (s *Service) DeleteAsset(ctx context.Context, userID, ledgerID, assetID string) error {
	if _, err := s.authorize(userID, ledgerID, types.RoleEditor); err != nil {
		return err
	}
	assets, err := s.table(types.AssetsTable)
	if err != nil {
		return err
	}
	if _, err := ledgerAsset(assets, ledgerID, assetID); err != nil {
		return err
	}
	return assets.Delete(assetID)
}

// ListAssets returns the assets of a ledger.
func (s *Service) ListAssets(ctx context.Context, userID, ledgerID string) ([]*types.Asset, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	return s.assets(ledgerID)
}

func (s *Service) assets(ledgerID string) ([]*types.Asset, error) {
	assets, err := s.table(types.AssetsTable)
	if err != nil {
		return nil, err
	}
	rows, err := assets.Fetch(map[string]any{"ledger_id": ledgerID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Asset, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.Asset)
	}
	return out, nil
}

// AssetHistory returns the mutation log of an asset, oldest first.
func (s *Service) AssetHistory(ctx context.Context, userID, ledgerID, assetID string) ([]*types.AssetMutation, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	assets, err := s.table(types.AssetsTable)
	if err != nil {
		return nil, err
	}
	if _, err := ledgerAsset(assets, ledgerID, assetID); err != nil {
		return nil, err
	}
	mutations, err := s.table(types.AssetMutationsTable)
	if err != nil {
		return nil, err
	}
	rows, err := mutations.Fetch(map[string]any{"asset_id": assetID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.AssetMutation, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.AssetMutation)
	}
	return out, nil
}

func ledgerAsset(assets types.Table, ledgerID, assetID string) (*types.Asset, error) {
	v, err := assets.Get(assetID)
	if err != nil {
		return nil, err
	}
	a := v.(*types.Asset)
	if a.LedgerID != ledgerID {
		return nil, fmt.Errorf("asset %s: %w", assetID, types.ErrNotFound)
	}
	return a, nil
}

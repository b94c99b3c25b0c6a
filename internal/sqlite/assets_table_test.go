package sqlite

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func TestAssetMutationLog(t *testing.T) {
	for _, encrypt := range []bool{false, true} {
		t.Run(map[bool]string{false: "plaintext", true: "encrypted"}[encrypt], func(t *testing.T) {
			b := attachBackend(t, t.TempDir(), func(c *types.Config) { c.EncryptFields = encrypt })
			l := createLedger(t, b, "Home")
			assets := mustTable(t, b, types.AssetsTable)
			mutations := mustTable(t, b, types.AssetMutationsTable)

			a := &types.Asset{LedgerID: l.LedgerID, Kind: types.AssetAccount, Name: "Checking",
				Balance: decimal.NewFromInt(1000), ChangedBy: "alice"}
			id, err := assets.Set("", a)
			require.NoError(t, err)
			assert.Equal(t, int64(1), a.Version)
			assert.Equal(t, types.AssetOpCreate, a.LastOperation)

			require.NoError(t, a.Withdraw(decimal.NewFromInt(1500)))
			a.Note = "rent"
			_, err = assets.Set(id, a)
			require.NoError(t, err)

			a.Adjust(decimal.NewFromInt(20))
			_, err = assets.Set(id, a)
			require.NoError(t, err)

			got, err := assets.Get(id)
			require.NoError(t, err)
			stored := got.(*types.Asset)
			assert.Equal(t, int64(3), stored.Version)
			assert.Equal(t, "20", stored.Balance.String())
			assert.Equal(t, "Checking", stored.Name)

			log, err := mutations.Fetch(map[string]any{"asset_id": id})
			require.NoError(t, err)
			require.Len(t, log, 3)
			want := []struct {
				op, delta, balance, note string
			}{
				{types.AssetOpCreate, "1000", "1000", ""},
				{types.AssetOpWithdraw, "-1500", "-500", "rent"},
				{types.AssetOpAdjust, "520", "20", ""},
			}
			for i, w := range want {
				m := log[i].(*types.AssetMutation)
				assert.Equal(t, int64(i+1), m.Version)
				assert.Equal(t, w.op, m.Operation)
				assert.Equal(t, w.delta, m.Delta.String())
				assert.Equal(t, w.balance, m.Balance.String())
				assert.Equal(t, w.note, m.Note)
				assert.Equal(t, "alice", m.ChangedBy)
			}

			_, err = mutations.Set("", &types.AssetMutation{})
			assert.ErrorIs(t, err, types.ErrReadOnlyTable)
			assert.ErrorIs(t, mutations.Delete(log[0].(*types.AssetMutation).MutationID), types.ErrReadOnlyTable)

			require.NoError(t, assets.Delete(id))
			log, err = mutations.Fetch(map[string]any{"asset_id": id})
			require.NoError(t, err)
			assert.Empty(t, log)
			assert.ErrorIs(t, assets.Delete(id), types.ErrNotFound)
		})
	}
}

func TestAssetValidation(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	l := createLedger(t, b, "Home")
	assets := mustTable(t, b, types.AssetsTable)

	_, err := assets.Set("", &types.Asset{LedgerID: l.LedgerID, Kind: types.AssetAccount})
	assert.ErrorIs(t, err, types.ErrInvalidName)
	_, err = assets.Set("", &types.Asset{LedgerID: l.LedgerID, Kind: "cash", Name: "Wallet"})
	assert.ErrorIs(t, err, types.ErrInvalidKind)
	_, err = assets.Set("", &types.Asset{LedgerID: "missing", Kind: types.AssetAccount, Name: "Wallet"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAssetFetchByKind(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	l := createLedger(t, b, "Home")
	assets := mustTable(t, b, types.AssetsTable)
	for _, a := range []*types.Asset{
		{LedgerID: l.LedgerID, Kind: types.AssetAccount, Name: "Checking"},
		{LedgerID: l.LedgerID, Kind: types.AssetLiability, Name: "Mortgage", Balance: decimal.NewFromInt(90000)},
	} {
		_, err := assets.Set("", a)
		require.NoError(t, err)
	}

	got, err := assets.Fetch(map[string]any{"ledger_id": l.LedgerID, "kind": types.AssetLiability})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mortgage", got[0].(*types.Asset).Name)
}

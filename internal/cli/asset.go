package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func newAssetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Track account, investment and liability balances",
	}
	var (
		ledgerID string
		note     string
		asset    struct {
			kind, balance, category1, category2, memo string
		}
	)

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an asset",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			balance, err := decimal.NewFromString(asset.balance)
			if err != nil {
				return fmt.Errorf("%w: balance %q", types.ErrInvalidAmount, asset.balance)
			}
			created, err := a.svc.CreateAsset(cmd.Context(), a.cfg.User, ledgerID, &types.Asset{
				Kind:      asset.kind,
				Name:      args[0],
				Balance:   balance,
				Category1: asset.category1,
				Category2: asset.category2,
				Memo:      asset.memo,
			})
			if err != nil {
				return err
			}
			return printAssets(cmd, created, created)
		}),
	}
	add.Flags().StringVarP(&asset.kind, "kind", "k", types.AssetAccount, "account, investment or liability")
	add.Flags().StringVarP(&asset.balance, "balance", "b", "0", "opening balance")
	add.Flags().StringVarP(&asset.category1, "category", "c", "", "asset category")
	add.Flags().StringVarP(&asset.category2, "subcategory", "s", "", "asset subcategory")
	add.Flags().StringVar(&asset.memo, "memo", "", "memo")

	list := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			as, err := a.svc.ListAssets(cmd.Context(), a.cfg.User, ledgerID)
			if err != nil {
				return err
			}
			return printAssets(cmd, as, as...)
		}),
	}

	type op func(ctx context.Context, userID, ledgerID, assetID string, amount decimal.Decimal, note string) (*types.Asset, error)
	mutation := func(use, short string, pick func(a *app) op) *cobra.Command {
		c := &cobra.Command{
			Use:   use + " <asset-id> <amount>",
			Short: short,
			Args:  exactArgs(2),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				if err := needLedger(ledgerID); err != nil {
					return err
				}
				amount, err := decimal.NewFromString(args[1])
				if err != nil {
					return fmt.Errorf("%w: %q", types.ErrInvalidAmount, args[1])
				}
				changed, err := pick(a)(cmd.Context(), a.cfg.User, ledgerID, args[0], amount, note)
				if err != nil {
					return err
				}
				return printAssets(cmd, changed, changed)
			}),
		}
		c.Flags().StringVarP(&note, "note", "n", "", "note kept in the asset history")
		return c
	}
	deposit := mutation("deposit", "Add to an asset balance", func(a *app) op { return a.svc.Deposit })
	withdraw := mutation("withdraw", "Subtract from an asset balance", func(a *app) op { return a.svc.Withdraw })
	adjust := mutation("adjust", "Set an asset balance", func(a *app) op { return a.svc.AdjustAsset })

	rename := &cobra.Command{
		Use:   "rename <asset-id> <name>",
		Short: "Rename an asset",
		Args:  exactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			changed, err := a.svc.RenameAsset(cmd.Context(), a.cfg.User, ledgerID, args[0], args[1])
			if err != nil {
				return err
			}
			return printAssets(cmd, changed, changed)
		}),
	}

	del := &cobra.Command{
		Use:   "delete <asset-id>",
		Short: "Delete an asset and its history",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			if err := a.svc.DeleteAsset(cmd.Context(), a.cfg.User, ledgerID, args[0]); err != nil {
				return err
			}
			return done(cmd, "deleted asset "+args[0])
		}),
	}

	history := &cobra.Command{
		Use:   "history <asset-id>",
		Short: "Show every change to an asset",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			ms, err := a.svc.AssetHistory(cmd.Context(), a.cfg.User, ledgerID, args[0])
			if err != nil {
				return err
			}
			return output(cmd, ms, func(w io.Writer) {
				fmt.Fprintln(w, "VERSION\tOPERATION\tDELTA\tBALANCE\tBY\tNOTE")
				for _, m := range ms {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", m.Version, m.Operation, m.Delta, m.Balance, m.ChangedBy, m.Note)
				}
			})
		}),
	}

	all := []*cobra.Command{add, list, deposit, withdraw, adjust, rename, del, history}
	for _, c := range all {
		ledgerFlag(c, &ledgerID)
	}
	cmd.AddCommand(all...)
	return cmd
}

func printAssets(cmd *cobra.Command, v any, as ...*types.Asset) error {
	return output(cmd, v, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tKIND\tNAME\tBALANCE\tVERSION")
		for _, a := range as {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.AssetID, a.Kind, a.Name, a.Balance, a.Version)
		}
	})
}

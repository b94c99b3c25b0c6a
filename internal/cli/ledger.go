package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage ledgers",
	}

	var currency string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a ledger owned by the acting user",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if currency == "" {
				currency = a.cfg.Currency
			}
			l, err := a.svc.CreateLedger(cmd.Context(), a.cfg.User, args[0], currency)
			if err != nil {
				return err
			}
			return printLedgers(cmd, l, l)
		}),
	}
	create.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code (config currency)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the ledgers the acting user belongs to",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ls, err := a.svc.ListLedgers(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			return printLedgers(cmd, ls, ls...)
		}),
	}

	show := &cobra.Command{
		Use:   "show <ledger-id>",
		Short: "Show a ledger",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			l, err := a.svc.GetLedger(cmd.Context(), a.cfg.User, args[0])
			if err != nil {
				return err
			}
			return printLedgers(cmd, l, l)
		}),
	}

	rename := &cobra.Command{
		Use:   "rename <ledger-id> <name>",
		Short: "Rename a ledger (owner)",
		Args:  exactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			l, err := a.svc.RenameLedger(cmd.Context(), a.cfg.User, args[0], args[1])
			if err != nil {
				return err
			}
			return printLedgers(cmd, l, l)
		}),
	}

	del := &cobra.Command{
		Use:   "delete <ledger-id>",
		Short: "Delete a ledger and everything in it (owner)",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.DeleteLedger(cmd.Context(), a.cfg.User, args[0]); err != nil {
				return err
			}
			return done(cmd, "deleted ledger "+args[0])
		}),
	}

	encrypt := &cobra.Command{
		Use:   "encrypt <ledger-id>",
		Short: "Seal plaintext fields of a ledger with its key (owner)",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			n, err := a.svc.EncryptLedger(cmd.Context(), a.cfg.User, args[0])
			if err != nil {
				return err
			}
			return output(cmd, map[string]int{"sealed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "sealed %d records\n", n)
			})
		}),
	}

	leave := &cobra.Command{
		Use:   "leave <ledger-id>",
		Short: "Leave a shared ledger",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.svc.LeaveLedger(cmd.Context(), a.cfg.User, args[0]); err != nil {
				return err
			}
			return done(cmd, "left ledger "+args[0])
		}),
	}

	cmd.AddCommand(create, list, show, rename, del, encrypt, leave)
	return cmd
}

func printLedgers(cmd *cobra.Command, v any, ls ...*types.Ledger) error {
	return output(cmd, v, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tCURRENCY\tOWNER")
		for _, l := range ls {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.LedgerID, l.Name, l.Currency, l.OwnerID)
		}
	})
}

// done reports a completed action without a result value.
func done(cmd *cobra.Command, msg string) error {
	return output(cmd, map[string]string{"status": "ok", "message": msg}, func(w io.Writer) {
		fmt.Fprintln(w, msg)
	})
}

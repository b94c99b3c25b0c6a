package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mesh-intelligence/homebook/internal/summary"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// txFlags are the editable fields of a transaction.
type txFlags struct {
	typ         string
	date        string
	amount      string
	category1   string
	category2   string
	payment     string
	description string
	memo        string
}

func (f *txFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.typ, "type", "t", types.TransactionExpense, "income or expense")
	fs.StringVarP(&f.date, "date", "d", "", "date as YYYY-MM-DD (default today)")
	fs.StringVarP(&f.amount, "amount", "a", "", "positive amount")
	fs.StringVarP(&f.category1, "category", "c", "", "top-level category")
	fs.StringVarP(&f.category2, "subcategory", "s", "", "second-level category")
	fs.StringVarP(&f.payment, "payment", "p", "", "payment method")
	fs.StringVar(&f.description, "description", "", "description")
	fs.StringVar(&f.memo, "memo", "", "memo")
}

// apply copies the flags that were set on the command line into tx.
// With all set, every flag is applied, defaults included.
func (f *txFlags) apply(fs *pflag.FlagSet, tx *types.Transaction, all bool) error {
	set := func(name string) bool { return all || fs.Changed(name) }
	if set("type") {
		tx.Type = f.typ
	}
	if set("date") {
		d := time.Now().UTC()
		if f.date != "" {
			var err error
			if d, err = time.Parse(types.DateLayout, f.date); err != nil {
				return fmt.Errorf("%w: %q", types.ErrInvalidDate, f.date)
			}
		}
		tx.Date = types.Day(d)
	}
	if set("amount") {
		amt, err := decimal.NewFromString(f.amount)
		if err != nil {
			return fmt.Errorf("%w: %q", types.ErrInvalidAmount, f.amount)
		}
		tx.Amount = amt
	}
	if set("category") {
		tx.Category1 = f.category1
	}
	if set("subcategory") {
		tx.Category2 = f.category2
	}
	if set("payment") {
		tx.Payment = f.payment
	}
	if set("description") {
		tx.Description = f.description
	}
	if set("memo") {
		tx.Memo = f.memo
	}
	return nil
}

func newTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transaction"},
		Short:   "Record and list transactions",
	}
	var (
		ledgerID string
		addFlags txFlags
		updFlags txFlags
		months   []string
		from, to string
	)

	add := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			tx := &types.Transaction{}
			if err := addFlags.apply(cmd.Flags(), tx, true); err != nil {
				return err
			}
			tx, err := a.svc.AddTransaction(cmd.Context(), a.cfg.User, ledgerID, tx)
			if err != nil {
				return err
			}
			return printTransactions(cmd, tx, tx)
		}),
	}
	addFlags.register(add.Flags())

	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions by month",
		Long:  "List transactions of the given months, of a --from/--to month range, or of every month.",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			var (
				txs []*types.Transaction
				err error
			)
			switch {
			case from != "" || to != "":
				if from == "" || to == "" {
					return usageError{fmt.Errorf("--from and --to go together")}
				}
				txs, err = a.svc.ListTransactionsBetween(cmd.Context(), a.cfg.User, ledgerID, from, to)
			default:
				txs, err = a.svc.ListTransactions(cmd.Context(), a.cfg.User, ledgerID, months...)
			}
			if err != nil {
				return err
			}
			return printTransactions(cmd, txs, txs...)
		}),
	}
	list.Flags().StringSliceVarP(&months, "month", "m", nil, "month as YYYY-MM (repeatable)")
	list.Flags().StringVar(&from, "from", "", "first month of a range")
	list.Flags().StringVar(&to, "to", "", "last month of a range")

	show := &cobra.Command{
		Use:   "show <transaction-id>",
		Short: "Show a transaction",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			tx, err := a.svc.GetTransaction(cmd.Context(), a.cfg.User, ledgerID, args[0])
			if err != nil {
				return err
			}
			return printTransactions(cmd, tx, tx)
		}),
	}

	update := &cobra.Command{
		Use:   "update <transaction-id>",
		Short: "Change fields of a transaction",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			tx, err := a.svc.GetTransaction(cmd.Context(), a.cfg.User, ledgerID, args[0])
			if err != nil {
				return err
			}
			if err := updFlags.apply(cmd.Flags(), tx, false); err != nil {
				return err
			}
			if tx, err = a.svc.UpdateTransaction(cmd.Context(), a.cfg.User, ledgerID, args[0], tx); err != nil {
				return err
			}
			return printTransactions(cmd, tx, tx)
		}),
	}
	updFlags.register(update.Flags())

	del := &cobra.Command{
		Use:   "delete <transaction-id>",
		Short: "Delete a transaction",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			if err := a.svc.DeleteTransaction(cmd.Context(), a.cfg.User, ledgerID, args[0]); err != nil {
				return err
			}
			return done(cmd, "deleted transaction "+args[0])
		}),
	}

	monthsCmd := &cobra.Command{
		Use:   "months",
		Short: "List the months holding transactions",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			ms, err := a.svc.Months(cmd.Context(), a.cfg.User, ledgerID)
			if err != nil {
				return err
			}
			return output(cmd, ms, func(w io.Writer) {
				for _, m := range ms {
					fmt.Fprintln(w, m)
				}
			})
		}),
	}

	for _, c := range []*cobra.Command{add, list, show, update, del, monthsCmd} {
		ledgerFlag(c, &ledgerID)
	}
	cmd.AddCommand(add, list, show, update, del, monthsCmd)
	return cmd
}

func printTransactions(cmd *cobra.Command, v any, txs ...*types.Transaction) error {
	return output(cmd, v, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tDATE\tTYPE\tCATEGORY\tPAYMENT\tAMOUNT\tDESCRIPTION")
		for _, t := range txs {
			cat := t.Category1
			if t.Category2 != "" {
				cat += "/" + t.Category2
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t.TransactionID, t.Date.Format(dateFormat), t.Type, cat,
				t.Payment, t.Signed().String(), t.Description)
		}
	})
}

// money formats an amount in the ledger currency for text output.
func money(amount decimal.Decimal, currency string) string {
	return summary.Format(amount, currency)
}

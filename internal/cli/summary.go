package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/internal/summary"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Monthly and yearly totals and net worth",
	}
	var ledgerID string

	month := &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "Totals of one month (default this month)",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			m := types.MonthOf(time.Now().UTC())
			if len(args) == 1 {
				m = args[0]
			}
			if !types.ValidMonth(m) {
				return fmt.Errorf("%w: %q", types.ErrInvalidMonth, m)
			}
			sum, err := a.svc.MonthlySummary(cmd.Context(), a.cfg.User, ledgerID, m)
			if err != nil {
				return err
			}
			return output(cmd, sum, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%d transactions\n", sum.Month, sum.Count)
				fmt.Fprintf(w, "income\t%s\n", money(sum.Income, sum.Currency))
				printAmounts(w, sum.IncomeByCategory, sum.Currency)
				fmt.Fprintf(w, "expense\t%s\n", money(sum.Expense, sum.Currency))
				printAmounts(w, sum.ExpenseByCategory, sum.Currency)
				fmt.Fprintf(w, "net\t%s\n", money(sum.Net, sum.Currency))
			})
		}),
	}

	year := &cobra.Command{
		Use:   "year [YYYY]",
		Short: "Totals of a calendar year month by month (default this year)",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			y := time.Now().UTC().Year()
			if len(args) == 1 {
				var err error
				if y, err = strconv.Atoi(args[0]); err != nil || y < 1 || y > 9999 {
					return usageError{fmt.Errorf("invalid year %q", args[0])}
				}
			}
			sum, err := a.svc.YearlySummary(cmd.Context(), a.cfg.User, ledgerID, y)
			if err != nil {
				return err
			}
			return output(cmd, sum, func(w io.Writer) {
				fmt.Fprintln(w, "MONTH\tINCOME\tEXPENSE\tNET")
				for _, m := range sum.Months {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Month, money(m.Income, sum.Currency),
						money(m.Expense, sum.Currency), money(m.Net, sum.Currency))
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", sum.Year, money(sum.Income, sum.Currency),
					money(sum.Expense, sum.Currency), money(sum.Net, sum.Currency))
			})
		}),
	}

	networth := &cobra.Command{
		Use:   "networth",
		Short: "Total of accounts and investments less liabilities",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			nw, err := a.svc.NetWorth(cmd.Context(), a.cfg.User, ledgerID)
			if err != nil {
				return err
			}
			return output(cmd, nw, func(w io.Writer) {
				fmt.Fprintf(w, "accounts\t%s\n", money(nw.Accounts, nw.Currency))
				fmt.Fprintf(w, "investments\t%s\n", money(nw.Investments, nw.Currency))
				fmt.Fprintf(w, "liabilities\t%s\n", money(nw.Liabilities, nw.Currency))
				fmt.Fprintf(w, "net worth\t%s\n", money(nw.Total, nw.Currency))
			})
		}),
	}

	for _, c := range []*cobra.Command{month, year, networth} {
		ledgerFlag(c, &ledgerID)
	}
	cmd.AddCommand(month, year, networth)
	return cmd
}

func printAmounts(w io.Writer, amounts []summary.CategoryAmount, currency string) {
	for _, c := range amounts {
		fmt.Fprintf(w, "  %s\t%s\n", c.Category, money(c.Amount, currency))
		for _, child := range c.Children {
			name := child.Category
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "    %s\t%s\n", name, money(child.Amount, currency))
		}
	}
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/internal/ledger"
	"github.com/mesh-intelligence/homebook/internal/spreadsheet"
)

func newImportCmd() *cobra.Command {
	var ledgerID string
	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import transactions from a homebook workbook",
		Long: "Import reads every month sheet (named YYYY-MM) and a Transactions sheet.\n" +
			"Nothing is recorded unless every row is valid; invalid cells are listed.",
		Args: exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			report, err := a.svc.ImportWorkbook(cmd.Context(), a.cfg.User, ledgerID, f)
			if err != nil {
				return describe(cmd, err)
			}
			return printReport(cmd, report)
		}),
	}
	ledgerFlag(cmd, &ledgerID)
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		ledgerID string
		months   []string
	)
	cmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export transactions, assets and categories to a workbook",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) (err error) {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			path := args[0]
			tmp, err := os.CreateTemp(filepath.Dir(path), ".homebook-export-*")
			if err != nil {
				return err
			}
			defer func() {
				if err != nil {
					_ = os.Remove(tmp.Name())
				}
			}()
			if err := a.svc.ExportWorkbook(cmd.Context(), a.cfg.User, ledgerID, tmp, months...); err != nil {
				_ = tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return err
			}
			if err := os.Rename(tmp.Name(), path); err != nil {
				return err
			}
			return done(cmd, "wrote "+path)
		}),
	}
	ledgerFlag(cmd, &ledgerID)
	cmd.Flags().StringSliceVarP(&months, "month", "m", nil, "month as YYYY-MM (repeatable, default all)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var ledgerID, layoutSpec string
	cmd := &cobra.Command{
		Use:   "migrate <file.xlsx>",
		Short: "Import a spreadsheet kept in another layout",
		Long: "Migrate reads one sheet whose columns are mapped with --layout, for example\n" +
			"  --layout date=A,category1=B,category2=C,amount=D,memo=E,header=1\n" +
			"Keys: sheet, header, default_type, date, type, amount, category1, category2,\n" +
			"payment, description, memo. Negative amounts without a type column are expenses.",
		Args: exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			layout, err := spreadsheet.ParseLayout(layoutSpec)
			if err != nil {
				return usageError{err}
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			report, err := a.svc.MigrateLegacy(cmd.Context(), a.cfg.User, ledgerID, f, layout)
			if err != nil {
				return describe(cmd, err)
			}
			return printReport(cmd, report)
		}),
	}
	ledgerFlag(cmd, &ledgerID)
	cmd.Flags().StringVar(&layoutSpec, "layout", "", "column mapping as key=value pairs")
	return cmd
}

func printReport(cmd *cobra.Command, r *ledger.ImportReport) error {
	return output(cmd, r, func(w io.Writer) {
		fmt.Fprintf(w, "imported\t%d transactions\n", r.Imported)
		fmt.Fprintf(w, "skipped\t%d rows\n", r.Skipped)
		fmt.Fprintf(w, "categories created\t%d\n", r.CategoriesCreated)
		fmt.Fprintf(w, "months\t%s\n", strings.Join(r.Months, ", "))
	})
}

// describe lists every invalid cell of a validation error on stdout so
// the whole workbook can be fixed in one pass.
func describe(cmd *cobra.Command, err error) error {
	var verr *spreadsheet.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	if perr := output(cmd, verr.Errors, func(w io.Writer) {
		for _, e := range verr.Errors {
			fmt.Fprintf(w, "%s!%s\t%s\n", e.Sheet, e.Cell, e.Message)
		}
	}); perr != nil {
		return perr
	}
	return err
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/internal/ledger"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

func newCategoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage the two-level category trees",
	}
	var ledgerID, typ string

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories as a tree",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			typs := types.CategoryTypes
			if typ != "" {
				typs = []string{typ}
			}
			var tree []ledger.CategoryNode
			for _, t := range typs {
				nodes, err := a.svc.CategoryTree(cmd.Context(), a.cfg.User, ledgerID, t)
				if err != nil {
					return err
				}
				tree = append(tree, nodes...)
			}
			return output(cmd, tree, func(w io.Writer) {
				for _, n := range tree {
					fmt.Fprintf(w, "%s\t%s\t%s\n", n.Type, n.Category1, n.CategoryID)
					for _, c := range n.Children {
						fmt.Fprintf(w, "%s\t  %s\t%s\n", c.Type, c.Category2, c.CategoryID)
					}
				}
			})
		}),
	}
	list.Flags().StringVarP(&typ, "type", "t", "", "income, expense, payment or asset (default all)")

	add := &cobra.Command{
		Use:   "add <type> <category> [subcategory]",
		Short: "Add a category, or a subcategory under an existing one",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(2, 3)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			sub := ""
			if len(args) == 3 {
				sub = args[2]
			}
			c, err := a.svc.AddCategory(cmd.Context(), a.cfg.User, ledgerID, args[0], args[1], sub)
			if err != nil {
				return err
			}
			return printCategory(cmd, c)
		}),
	}

	rename := &cobra.Command{
		Use:   "rename <category-id> <name>",
		Short: "Rename a category; subcategories follow a renamed parent",
		Args:  exactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			c, err := a.svc.RenameCategory(cmd.Context(), a.cfg.User, ledgerID, args[0], args[1])
			if err != nil {
				return err
			}
			return printCategory(cmd, c)
		}),
	}

	del := &cobra.Command{
		Use:   "delete <category-id>",
		Short: "Delete a category and its subcategories",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			if err := a.svc.DeleteCategory(cmd.Context(), a.cfg.User, ledgerID, args[0]); err != nil {
				return err
			}
			return done(cmd, "deleted category "+args[0])
		}),
	}

	for _, c := range []*cobra.Command{list, add, rename, del} {
		ledgerFlag(c, &ledgerID)
	}
	cmd.AddCommand(list, add, rename, del)
	return cmd
}

func printCategory(cmd *cobra.Command, c *types.Category) error {
	return output(cmd, c, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.CategoryID, c.Type, c.Path())
	})
}

// Package cli implements the homebook command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/internal/config"
	"github.com/mesh-intelligence/homebook/internal/ledger"
	"github.com/mesh-intelligence/homebook/internal/spreadsheet"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	user      string
	jsonMode  bool
}

var flags rootFlags

// NewRootCmd creates the top-level "homebook" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "homebook",
		Short: "A shared household ledger",
		Long: "homebook keeps household ledgers: income and expense transactions, assets,\n" +
			"categories and the people who share them, with spreadsheet import and export.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (env HOMEBOOK_CONFIG_DIR)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (config data_dir)")
	root.PersistentFlags().StringVar(&flags.user, "user", "", "acting user id (config user)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newServeCmd(),
		newLedgerCmd(),
		newMemberCmd(),
		newInviteCmd(),
		newTxCmd(),
		newAssetCmd(),
		newCategoryCmd(),
		newSummaryCmd(),
		newImportCmd(),
		newExportCmd(),
		newMigrateCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "homebook:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// usageError marks bad invocations: wrong arguments or flags.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// userErrors are caused by the request rather than the system.
var userErrors = []error{
	ledger.ErrNotMember,
	ledger.ErrForbidden,
	ledger.ErrOwnerRemoval,
	ledger.ErrNoUser,
	types.ErrNotFound,
	types.ErrDuplicate,
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrInvalidName,
	types.ErrInvalidRole,
	types.ErrInvalidKind,
	types.ErrInvalidAmount,
	types.ErrInvalidDate,
	types.ErrInvalidMonth,
	types.ErrInvalidCategory,
	types.ErrInvalidCategoryType,
	types.ErrInvalidTransactionType,
	types.ErrInvalidCurrency,
	types.ErrInvitationClosed,
	types.ErrInvitationExpired,
	spreadsheet.ErrNoTransactionSheet,
	spreadsheet.ErrUnreadable,
	spreadsheet.ErrInvalidLayout,
	config.ErrInvalidLogLevel,
	config.ErrInvalidDebounce,
}

// exitCode is 1 for usage and request errors and 2 for everything else:
// storage, filesystem and configuration failures.
func exitCode(err error) int {
	var (
		uerr usageError
		verr *spreadsheet.ValidationError
	)
	if errors.As(err, &uerr) || errors.As(err, &verr) {
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

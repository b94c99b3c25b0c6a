package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

func newMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage who shares a ledger",
	}
	var ledgerID string

	list := &cobra.Command{
		Use:   "list",
		Short: "List the members of a ledger",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			ms, err := a.svc.ListMembers(cmd.Context(), a.cfg.User, ledgerID)
			if err != nil {
				return err
			}
			return printMembers(cmd, ms, ms...)
		}),
	}

	role := &cobra.Command{
		Use:   "role <user-id> <editor|viewer>",
		Short: "Change a member's role (owner)",
		Args:  exactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			m, err := a.svc.SetMemberRole(cmd.Context(), a.cfg.User, ledgerID, args[0], args[1])
			if err != nil {
				return err
			}
			return printMembers(cmd, m, m)
		}),
	}

	remove := &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a member (owner)",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			if err := a.svc.RemoveMember(cmd.Context(), a.cfg.User, ledgerID, args[0]); err != nil {
				return err
			}
			return done(cmd, "removed "+args[0])
		}),
	}

	for _, c := range []*cobra.Command{list, role, remove} {
		ledgerFlag(c, &ledgerID)
	}
	cmd.AddCommand(list, role, remove)
	return cmd
}

func printMembers(cmd *cobra.Command, v any, ms ...*types.Member) error {
	return output(cmd, v, func(w io.Writer) {
		fmt.Fprintln(w, "USER\tROLE\tJOINED")
		for _, m := range ms {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, m.Role, m.JoinedAt.Format(dateFormat))
		}
	})
}

func newInviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite collaborators to a ledger",
	}
	var ledgerID, role string

	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an invitation code (owner)",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			inv, err := a.svc.Invite(cmd.Context(), a.cfg.User, ledgerID, args[0], role)
			if err != nil {
				return err
			}
			return printInvitations(cmd, inv, inv)
		}),
	}
	create.Flags().StringVar(&role, "role", types.RoleEditor, "role granted on acceptance (editor or viewer)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a ledger's invitations (owner)",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			invs, err := a.svc.ListInvitations(cmd.Context(), a.cfg.User, ledgerID)
			if err != nil {
				return err
			}
			return printInvitations(cmd, invs, invs...)
		}),
	}

	revoke := &cobra.Command{
		Use:   "revoke <invitation-id>",
		Short: "Revoke a pending invitation (owner)",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := needLedger(ledgerID); err != nil {
				return err
			}
			inv, err := a.svc.RevokeInvitation(cmd.Context(), a.cfg.User, ledgerID, args[0])
			if err != nil {
				return err
			}
			return printInvitations(cmd, inv, inv)
		}),
	}

	accept := &cobra.Command{
		Use:   "accept <code>",
		Short: "Join a ledger with an invitation code",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			m, err := a.svc.AcceptInvitation(cmd.Context(), a.cfg.User, args[0])
			if err != nil {
				return err
			}
			return output(cmd, m, func(w io.Writer) {
				fmt.Fprintf(w, "joined ledger %s as %s\n", m.LedgerID, m.Role)
			})
		}),
	}

	for _, c := range []*cobra.Command{create, list, revoke} {
		ledgerFlag(c, &ledgerID)
	}
	cmd.AddCommand(create, list, revoke, accept)
	return cmd
}

func printInvitations(cmd *cobra.Command, v any, invs ...*types.Invitation) error {
	return output(cmd, v, func(w io.Writer) {
		fmt.Fprintln(w, "ID\tEMAIL\tROLE\tCODE\tSTATE\tEXPIRES")
		for _, inv := range invs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", inv.InvitationID, inv.Email, inv.Role, inv.Code, inv.State,
				inv.ExpiresAt.Format(time.RFC3339))
		}
	})
}

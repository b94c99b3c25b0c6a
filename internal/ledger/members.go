package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// ListMembers returns the members of a ledger in join order.
func (s *Service) ListMembers(ctx context.Context, userID, ledgerID string) ([]*types.Member, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleViewer); err != nil {
		return nil, err
	}
	members, err := s.table(types.MembersTable)
	if err != nil {
		return nil, err
	}
	rows, err := members.Fetch(map[string]any{"ledger_id": ledgerID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Member, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.Member)
	}
	return out, nil
}

// SetMemberRole changes the role of a member. Owner only; the owner's own
// role cannot change and no one else can become owner.
func (s *Service) SetMemberRole(ctx context.Context, userID, ledgerID, memberUserID, role string) (*types.Member, error) {
	a, err := s.authorize(userID, ledgerID, types.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !types.ValidRole(role) || role == types.RoleOwner {
		return nil, types.ErrInvalidRole
	}
	if memberUserID == a.ledger.OwnerID {
		return nil, ErrOwnerRemoval
	}
	m, err := s.membership(ledgerID, memberUserID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s: %w", memberUserID, types.ErrNotFound)
	}
	members, err := s.table(types.MembersTable)
	if err != nil {
		return nil, err
	}
	m.Role = role
	if _, err := members.Set(m.MemberID, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember revokes a user's access. Owner only.
func (s *Service) RemoveMember(ctx context.Context, userID, ledgerID, memberUserID string) error {
	a, err := s.authorize(userID, ledgerID, types.RoleOwner)
	if err != nil {
		return err
	}
	if memberUserID == a.ledger.OwnerID {
		return ErrOwnerRemoval
	}
	return s.dropMember(ledgerID, memberUserID)
}

// LeaveLedger removes the acting user from a ledger. The owner cannot leave.
func (s *Service) LeaveLedger(ctx context.Context, userID, ledgerID string) error {
	a, err := s.authorize(userID, ledgerID, types.RoleViewer)
	if err != nil {
		return err
	}
	if userID == a.ledger.OwnerID {
		return ErrOwnerRemoval
	}
	return s.dropMember(ledgerID, userID)
}

func (s *Service) dropMember(ledgerID, userID string) error {
	m, err := s.membership(ledgerID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("member %s: %w", userID, types.ErrNotFound)
	}
	members, err := s.table(types.MembersTable)
	if err != nil {
		return err
	}
	if err := members.Delete(m.MemberID); err != nil {
		return err
	}
	s.logger.Info("member removed", zap.String("ledger", ledgerID), zap.String("member", userID))
	return nil
}

// Invite creates a pending invitation valid for InvitationTTL. Owner only.
// Invitations grant editor or viewer; ownership is not transferable.
func (s *Service) Invite(ctx context.Context, userID, ledgerID, email, role string) (*types.Invitation, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleOwner); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email %q: %w", email, types.ErrInvalidData)
	}
	if role == "" {
		role = types.RoleEditor
	}
	if !types.ValidRole(role) || role == types.RoleOwner {
		return nil, types.ErrInvalidRole
	}
	invitations, err := s.table(types.InvitationsTable)
	if err != nil {
		return nil, err
	}
	inv := &types.Invitation{
		LedgerID:  ledgerID,
		Email:     email,
		Role:      role,
		InvitedBy: userID,
		State:     types.InvitationPending,
		ExpiresAt: s.now().Add(InvitationTTL),
	}
	if _, err := invitations.Set("", inv); err != nil {
		return nil, err
	}
	s.logger.Info("invitation created", zap.String("ledger", ledgerID), zap.String("role", role))
	return inv, nil
}

// ListInvitations returns the ledger's invitations, newest first. Owner only.
func (s *Service) ListInvitations(ctx context.Context, userID, ledgerID string) ([]*types.Invitation, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleOwner); err != nil {
		return nil, err
	}
	invitations, err := s.table(types.InvitationsTable)
	if err != nil {
		return nil, err
	}
	rows, err := invitations.Fetch(map[string]any{"ledger_id": ledgerID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Invitation, len(rows))
	for i, r := range rows {
		out[i] = r.(*types.Invitation)
	}
	return out, nil
}

// AcceptInvitation redeems an invitation code and makes userID a member
// with the invited role. A user who is already a member gets their
// existing membership back and the invitation is closed.
func (s *Service) AcceptInvitation(ctx context.Context, userID, code string) (*types.Member, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	invitations, err := s.table(types.InvitationsTable)
	if err != nil {
		return nil, err
	}
	rows, err := invitations.Fetch(map[string]any{"code": strings.ToUpper(strings.TrimSpace(code))})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("invitation %q: %w", code, types.ErrNotFound)
	}
	inv := rows[0].(*types.Invitation)

	existing, err := s.membership(inv.LedgerID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if inv.State == types.InvitationPending && inv.Accept(userID, s.now()) == nil {
			if _, err := invitations.Set(inv.InvitationID, inv); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if err := inv.Accept(userID, s.now()); err != nil {
		return nil, err
	}
	members, err := s.table(types.MembersTable)
	if err != nil {
		return nil, err
	}
	m := &types.Member{LedgerID: inv.LedgerID, UserID: userID, Role: inv.Role}
	if _, err := members.Set("", m); err != nil {
		return nil, err
	}
	if _, err := invitations.Set(inv.InvitationID, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted", zap.String("ledger", inv.LedgerID), zap.String("user", userID))
	return m, nil
}

// RevokeInvitation withdraws a pending invitation. Owner only.
func (s *Service) RevokeInvitation(ctx context.Context, userID, ledgerID, invitationID string) (*types.Invitation, error) {
	if _, err := s.authorize(userID, ledgerID, types.RoleOwner); err != nil {
		return nil, err
	}
	invitations, err := s.table(types.InvitationsTable)
	if err != nil {
		return nil, err
	}
	v, err := invitations.Get(invitationID)
	if err != nil {
		return nil, err
	}
	inv := v.(*types.Invitation)
	if inv.LedgerID != ledgerID {
		return nil, fmt.Errorf("invitation %s: %w", invitationID, types.ErrNotFound)
	}
	if err := inv.Revoke(); err != nil {
		return nil, err
	}
	if _, err := invitations.Set(inv.InvitationID, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

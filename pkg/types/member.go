package types

import "time"

// Member roles. Owners manage the ledger and its members, editors record
// entries, viewers only read.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

var roleRank = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// ValidRole reports whether role is a recognized member role.
func ValidRole(role string) bool {
	return roleRank[role] > 0
}

// RoleAtLeast reports whether role grants at least the permissions of min.
func RoleAtLeast(role, min string) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	return r >= roleRank[min]
}

// Member grants a user access to a ledger.
type Member struct {
	MemberID string    `json:"member_id"`
	LedgerID string    `json:"ledger_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Invitation states.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)

// Invitation is an outstanding offer to join a ledger. The invitee redeems
// it with Code.
type Invitation struct {
	InvitationID string    `json:"invitation_id"`
	LedgerID     string    `json:"ledger_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Code         string    `json:"code"`
	InvitedBy    string    `json:"invited_by"`
	State        string    `json:"state"`
	AcceptedBy   string    `json:"accepted_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the invitation is past its expiry at now.
// An invitation with a zero ExpiresAt never expires.
func (i *Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Accept marks a pending invitation as accepted by userID.
// Returns ErrInvitationClosed if it is not pending and ErrInvitationExpired
// if it expired before now.
func (i *Invitation) Accept(userID string, now time.Time) error {
	if i.State != InvitationPending {
		return ErrInvitationClosed
	}
	if i.Expired(now) {
		return ErrInvitationExpired
	}
	i.State = InvitationAccepted
	i.AcceptedBy = userID
	return nil
}

// Revoke withdraws a pending invitation.
func (i *Invitation) Revoke() error {
	if i.State != InvitationPending {
		return ErrInvitationClosed
	}
	i.State = InvitationRevoked
	return nil
}

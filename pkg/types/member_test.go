package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAtLeast(RoleOwner, RoleEditor))
	assert.True(t, RoleAtLeast(RoleEditor, RoleEditor))
	assert.False(t, RoleAtLeast(RoleViewer, RoleEditor))
	assert.False(t, RoleAtLeast("admin", RoleViewer))
	assert.False(t, ValidRole(""))
}

func TestInvitationAccept(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		inv     Invitation
		wantErr error
	}{
		{
			name: "pending and fresh",
			inv:  Invitation{State: InvitationPending, ExpiresAt: now.Add(time.Hour)},
		},
		{
			name: "no expiry",
			inv:  Invitation{State: InvitationPending},
		},
		{
			name:    "expired",
			inv:     Invitation{State: InvitationPending, ExpiresAt: now.Add(-time.Second)},
			wantErr: ErrInvitationExpired,
		},
		{
			name:    "already accepted",
			inv:     Invitation{State: InvitationAccepted},
			wantErr: ErrInvitationClosed,
		},
		{
			name:    "revoked",
			inv:     Invitation{State: InvitationRevoked},
			wantErr: ErrInvitationClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := tt.inv
			err := inv.Accept("bob", now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.inv.State, inv.State, "state should not change on error")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, InvitationAccepted, inv.State)
			assert.Equal(t, "bob", inv.AcceptedBy)
		})
	}
}

func TestInvitationRevoke(t *testing.T) {
	inv := Invitation{State: InvitationPending}
	assert.NoError(t, inv.Revoke())
	assert.Equal(t, InvitationRevoked, inv.State)
	assert.ErrorIs(t, inv.Revoke(), ErrInvitationClosed)
}

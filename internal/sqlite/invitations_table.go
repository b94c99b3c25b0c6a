package sqlite

import (
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*invitationsTable)(nil)

type invitationsTable struct {
	backend *Backend
}

const invitationColumns = "invitation_id, ledger_id, email, role, code, invited_by, state, accepted_by, created_at, expires_at"

// inviteCode returns a short random code that is easy to type.
func inviteCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating invitation code: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// Get retrieves an invitation by ID.
func (it *invitationsTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := it.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	inv, err := scanInvitation(b.db.QueryRow("SELECT "+invitationColumns+" FROM invitations WHERE invitation_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting invitation %s: %w", id, err)
	}
	return inv, nil
}

// Set creates or updates an invitation. New invitations start pending and
// receive a generated code unless one is supplied.
func (it *invitationsTable) Set(id string, data any) (string, error) {
	inv, ok := data.(*types.Invitation)
	if !ok || inv == nil {
		return "", types.ErrInvalidData
	}
	inv.Email = strings.TrimSpace(inv.Email)
	if inv.Email == "" {
		return "", fmt.Errorf("email: %w", types.ErrInvalidData)
	}
	if !types.ValidRole(inv.Role) {
		return "", types.ErrInvalidRole
	}

	b := it.backend
	if err := b.lockWrite(); err != nil {
		return "", err
	}
	defer b.mu.Unlock()

	if id != "" {
		cur, err := scanInvitation(b.db.QueryRow("SELECT "+invitationColumns+" FROM invitations WHERE invitation_id = ?", id))
		if err == nil {
			inv.InvitationID, inv.LedgerID, inv.Code, inv.CreatedAt = cur.InvitationID, cur.LedgerID, cur.Code, cur.CreatedAt
			_, err := b.db.Exec(
				"UPDATE invitations SET email = ?, role = ?, state = ?, accepted_by = ?, expires_at = ? WHERE invitation_id = ?",
				inv.Email, inv.Role, inv.State, inv.AcceptedBy, formatTime(inv.ExpiresAt), id)
			if err != nil {
				return "", fmt.Errorf("updating invitation: %w", err)
			}
			return id, b.persistFlat(invitationsSpec)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("checking invitation existence: %w", err)
		}
	}

	if err := b.requireLedger(inv.LedgerID); err != nil {
		return "", err
	}
	if inv.Code == "" {
		code, err := inviteCode()
		if err != nil {
			return "", err
		}
		inv.Code = code
	}
	var dup string
	err := b.db.QueryRow("SELECT invitation_id FROM invitations WHERE code = ?", inv.Code).Scan(&dup)
	if err == nil {
		return "", types.ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("checking invitation code: %w", err)
	}

	if id == "" {
		id = generateUUID()
	}
	inv.InvitationID = id
	if inv.State == "" {
		inv.State = types.InvitationPending
	}
	inv.CreatedAt = b.timestamp()
	_, err = b.db.Exec("INSERT INTO invitations ("+invitationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, inv.LedgerID, inv.Email, inv.Role, inv.Code, inv.InvitedBy, inv.State, inv.AcceptedBy,
		formatTime(inv.CreatedAt), formatTime(inv.ExpiresAt))
	if err != nil {
		return "", fmt.Errorf("inserting invitation: %w", err)
	}
	return id, b.persistFlat(invitationsSpec)
}

// Delete removes an invitation.
func (it *invitationsTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := it.backend
	if err := b.lockWrite(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	res, err := b.db.Exec("DELETE FROM invitations WHERE invitation_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting invitation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return b.persistFlat(invitationsSpec)
}

// Fetch returns invitations, newest first. Filters: ledger_id, code, state,
// email.
func (it *invitationsTable) Fetch(filter map[string]any) ([]any, error) {
	if err := checkFilterKeys(filter, "ledger_id", "code", "state", "email"); err != nil {
		return nil, err
	}
	var w whereClause
	if err := addStringFilters(&w, filter, "ledger_id", "code", "state", "email"); err != nil {
		return nil, err
	}

	b := it.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT "+invitationColumns+" FROM invitations"+w.String()+" ORDER BY created_at DESC, invitation_id DESC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching invitations: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation: %w", err)
		}
		results = append(results, inv)
	}
	return results, rows.Err()
}

func scanInvitation(row rowScanner) (*types.Invitation, error) {
	var (
		inv                  types.Invitation
		createdAt, expiresAt string
	)
	err := row.Scan(&inv.InvitationID, &inv.LedgerID, &inv.Email, &inv.Role, &inv.Code, &inv.InvitedBy,
		&inv.State, &inv.AcceptedBy, &createdAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	inv.CreatedAt = parseTime(createdAt)
	inv.ExpiresAt = parseTime(expiresAt)
	return &inv, nil
}

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

var _ types.Table = (*membersTable)(nil)

type membersTable struct {
	backend *Backend
}

const memberColumns = "member_id, ledger_id, user_id, role, joined_at"

// Get retrieves a member by ID.
func (mt *membersTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := mt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	m, err := scanMember(b.db.QueryRow("SELECT "+memberColumns+" FROM members WHERE member_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting member %s: %w", id, err)
	}
	return m, nil
}

// Set creates or updates a membership. A user can hold at most one
// membership per ledger; a second one fails with ErrDuplicate. Only the role
// of an existing membership can change.
func (mt *membersTable) Set(id string, data any) (string, error) {
	m, ok := data.(*types.Member)
	if !ok || m == nil {
		return "", types.ErrInvalidData
	}
	if m.UserID == "" {
		return "", fmt.Errorf("user_id: %w", types.ErrInvalidID)
	}
	if !types.ValidRole(m.Role) {
		return "", types.ErrInvalidRole
	}

	b := mt.backend
	if err := b.lockWrite(); err != nil {
		return "", err
	}
	defer b.mu.Unlock()

	if id != "" {
		cur, err := scanMember(b.db.QueryRow("SELECT "+memberColumns+" FROM members WHERE member_id = ?", id))
		if err == nil {
			if _, err := b.db.Exec("UPDATE members SET role = ? WHERE member_id = ?", m.Role, id); err != nil {
				return "", fmt.Errorf("updating member: %w", err)
			}
			m.MemberID, m.LedgerID, m.UserID, m.JoinedAt = cur.MemberID, cur.LedgerID, cur.UserID, cur.JoinedAt
			return id, b.persistFlat(membersSpec)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("checking member existence: %w", err)
		}
	}

	if err := b.requireLedger(m.LedgerID); err != nil {
		return "", err
	}
	var dup string
	err := b.db.QueryRow("SELECT member_id FROM members WHERE ledger_id = ? AND user_id = ?", m.LedgerID, m.UserID).Scan(&dup)
	if err == nil {
		return "", types.ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("checking member uniqueness: %w", err)
	}

	if id == "" {
		id = generateUUID()
	}
	m.MemberID = id
	if m.JoinedAt.IsZero() {
		m.JoinedAt = b.timestamp()
	}
	_, err = b.db.Exec("INSERT INTO members ("+memberColumns+") VALUES (?, ?, ?, ?, ?)",
		id, m.LedgerID, m.UserID, m.Role, formatTime(m.JoinedAt))
	if err != nil {
		return "", fmt.Errorf("inserting member: %w", err)
	}
	return id, b.persistFlat(membersSpec)
}

// Delete removes a membership.
func (mt *membersTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := mt.backend
	if err := b.lockWrite(); err != nil {
		return err
	}
	defer b.mu.Unlock()

	res, err := b.db.Exec("DELETE FROM members WHERE member_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting member %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return b.persistFlat(membersSpec)
}

// Fetch returns memberships ordered by join time. Filters: ledger_id,
// user_id, role.
func (mt *membersTable) Fetch(filter map[string]any) ([]any, error) {
	if err := checkFilterKeys(filter, "ledger_id", "user_id", "role"); err != nil {
		return nil, err
	}
	var w whereClause
	if err := addStringFilters(&w, filter, "ledger_id", "user_id", "role"); err != nil {
		return nil, err
	}

	b := mt.backend
	if err := b.lockRead(); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	rows, err := b.db.Query("SELECT "+memberColumns+" FROM members"+w.String()+" ORDER BY joined_at, member_id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching members: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func scanMember(row rowScanner) (*types.Member, error) {
	var (
		m        types.Member
		joinedAt string
	)
	if err := row.Scan(&m.MemberID, &m.LedgerID, &m.UserID, &m.Role, &joinedAt); err != nil {
		return nil, err
	}
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

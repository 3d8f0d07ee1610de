package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeEmail NFC-normalizes and lowercases an email address before it
// touches the unique index, so visually identical addresses typed on
// different platforms (e.g. a precomposed vs. decomposed accented
// character) collide correctly instead of silently duplicating a user row.
func normalizeEmail(email string) string {
	return strings.ToLower(norm.NFC.String(email))
}

type userStatements struct {
	save, get, getByEmail *sql.Stmt
}

const (
	sqlUserColumns = `id, email, name, role, status, credentials_meta_json, created_at, updated_at`

	sqlSaveUser = `INSERT INTO users (` + sqlUserColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			role = excluded.role,
			status = excluded.status,
			credentials_meta_json = excluded.credentials_meta_json,
			updated_at = excluded.updated_at`

	sqlGetUser = `SELECT ` + sqlUserColumns + ` FROM users WHERE id = ?`

	sqlGetUserByEmail = `SELECT ` + sqlUserColumns + ` FROM users WHERE email = ?`
)

func (s *SQLiteStore) prepareUserStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.userStmts.save, sqlSaveUser, "saveUser"},
		{&s.userStmts.get, sqlGetUser, "getUser"},
		{&s.userStmts.getByEmail, sqlGetUserByEmail, "getUserByEmail"},
	})
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}

	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status,
		&u.CredentialsMetaJSON, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return u, nil
}

// SaveUser inserts or updates a user row.
func (s *SQLiteStore) SaveUser(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)

	s.logger.Debug("saving user", "id", u.ID, "email", u.Email)

	_, err := s.userStmts.save.ExecContext(ctx,
		u.ID, u.Email, u.Name, string(u.Role), u.Status, jsonOr(u.CredentialsMetaJSON, "{}"),
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save user %s: %w", u.ID, err)
	}

	return nil
}

// GetUser returns a user by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.userStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get user %s: %w", id, err)
	}

	return u, nil
}

// GetUserByEmail returns a user by email, or (nil, nil) if not found.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.userStmts.getByEmail.QueryRowContext(ctx, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get user by email %s: %w", email, err)
	}

	return u, nil
}

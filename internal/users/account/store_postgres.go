// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account (Postgres) implements the credential store on users.account.

# Schema Table Mapping
  - users.account: identity, password hash, token version and MFA flags.

Uniqueness is enforced on the normalized username and email keys, and
violations are reported as [ErrUsernameTaken] / [ErrEmailTaken].
*/
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/shopauth/internal/platform/database/schema"
	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/pkg/normalize"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// Unique index names from the users migration.
const (
	constraintUsernameKey = "account_usernamekey_key"
	constraintEmailKey    = "account_emailkey_key"
)

// PostgresUserRepository implements [UserRepository] using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgreSQL implementation of [UserRepository].
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

var userColumns = strings.Join(schema.UserAccount.Columns(), ", ")

func scanUser(row pgx.Row) (*User, error) {
	var passwordHash, totpSecret *string

	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.Email,
		&passwordHash,
		&user.EmailVerified,
		&user.Role,
		&user.TokenVersion,
		&user.TOTPEnabled,
		&totpSecret,
		&user.EmailMFAEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	if totpSecret != nil {
		user.TOTPSecret = *totpSecret
	}
	return user, nil
}

// mapUniqueViolation turns a unique-key violation into the matching domain error.
func mapUniqueViolation(err error) error {
	if !dberr.IsUniqueViolation(err) {
		return nil
	}
	switch dberr.ConstraintName(err) {
	case constraintUsernameKey:
		return ErrUsernameTaken
	case constraintEmailKey:
		return ErrEmailTaken
	}
	return dberr.ErrDuplicate
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

/*
Create persists a new user record into the users.account table.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: ErrUsernameTaken, ErrEmailTaken or database errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		schema.UserAccount.Table,
		schema.UserAccount.ID, schema.UserAccount.Username, schema.UserAccount.UsernameKey,
		schema.UserAccount.DisplayName, schema.UserAccount.Email, schema.UserAccount.EmailKey,
		schema.UserAccount.Password, schema.UserAccount.EmailVerified, schema.UserAccount.Role,
		schema.UserAccount.TokenVersion, schema.UserAccount.TOTPEnabled, schema.UserAccount.TOTPSecret,
		schema.UserAccount.EmailMFAEnabled, schema.UserAccount.CreatedAt, schema.UserAccount.UpdatedAt,
	)

	if user.ID == "" {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.UsernameKey(),
		user.DisplayName,
		user.Email,
		user.EmailKey(),
		nullable(user.PasswordHash),
		user.EmailVerified,
		user.Role,
		user.TokenVersion,
		user.TOTPEnabled,
		nullable(user.TOTPSecret),
		user.EmailMFAEnabled,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

// findOne runs a single-row lookup against one column.
func (repository *PostgresUserRepository) findOne(context context.Context, action, column, value string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL`,
		userColumns, schema.UserAccount.Table, column, schema.UserAccount.DeletedAt)

	user, err := scanUser(repository.pool.QueryRow(context, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return user, nil
}

// FindByID retrieves a user record by primary key.
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	if !uuid.Valid(id) {
		return nil, dberr.ErrNotFound
	}
	return repository.findOne(context, "postgres_user_repo_find_by_id_failed", schema.UserAccount.ID, id)
}

// FindByEmail retrieves a user record by normalized email.
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	return repository.findOne(context, "postgres_user_repo_find_by_email_failed", schema.UserAccount.EmailKey, normalize.Identifier(email))
}

/*
FindByIdentifier resolves a sign-in identifier.

Description: Identifiers containing '@' are tried as email first; everything
else is a username. A username that happens to contain '@' still matches.

Parameters:
  - context: context.Context
  - identifier: string (raw user input)

Returns:
  - *User: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (repository *PostgresUserRepository) FindByIdentifier(context context.Context, identifier string) (*User, error) {
	key := normalize.Identifier(identifier)
	if key == "" {
		return nil, dberr.ErrNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE (%s = $1 OR %s = $1) AND %s IS NULL
		ORDER BY (%s = $1) DESC
		LIMIT 1`,
		userColumns, schema.UserAccount.Table,
		schema.UserAccount.EmailKey, schema.UserAccount.UsernameKey, schema.UserAccount.DeletedAt,
		schema.UserAccount.EmailKey,
	)

	user, err := scanUser(repository.pool.QueryRow(context, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_identifier_failed: %w", err)
	}
	return user, nil
}

// bumpReturning runs an UPDATE that increments tokenversion and returns the new value.
func (repository *PostgresUserRepository) bumpReturning(context context.Context, action, assignments string, args ...any) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s%s = %s + 1, %s = NOW()
		WHERE %s = $1 AND %s IS NULL
		RETURNING %s`,
		schema.UserAccount.Table,
		assignments, schema.UserAccount.TokenVersion, schema.UserAccount.TokenVersion, schema.UserAccount.UpdatedAt,
		schema.UserAccount.ID, schema.UserAccount.DeletedAt,
		schema.UserAccount.TokenVersion,
	)

	var version int
	if err := repository.pool.QueryRow(context, query, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, dberr.ErrNotFound
		}
		if mapped := mapUniqueViolation(err); mapped != nil {
			return 0, mapped
		}
		return 0, fmt.Errorf("%s: %w", action, err)
	}
	return version, nil
}

// UpdatePassword replaces the hash and bumps the token version atomically.
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, passwordHash string) (int, error) {
	assignments := fmt.Sprintf("%s = $2, ", schema.UserAccount.Password)
	return repository.bumpReturning(context, "postgres_user_repo_update_password_failed", assignments, userID, passwordHash)
}

// UpdateEmail swaps the address, clears verification and bumps the token version.
func (repository *PostgresUserRepository) UpdateEmail(context context.Context, userID, email string) (int, error) {
	assignments := fmt.Sprintf("%s = $2, %s = $3, %s = FALSE, ",
		schema.UserAccount.Email, schema.UserAccount.EmailKey, schema.UserAccount.EmailVerified)
	return repository.bumpReturning(context, "postgres_user_repo_update_email_failed", assignments, userID, email, normalize.Identifier(email))
}

// BumpTokenVersion voids every token carrying the previous version.
func (repository *PostgresUserRepository) BumpTokenVersion(context context.Context, userID string) (int, error) {
	return repository.bumpReturning(context, "postgres_user_repo_bump_version_failed", "", userID)
}

// exec runs a single-row UPDATE and maps a missing row to dberr.ErrNotFound.
func (repository *PostgresUserRepository) exec(context context.Context, action, assignments string, args ...any) error {
	query := fmt.Sprintf(`UPDATE %s SET %s, %s = NOW() WHERE %s = $1 AND %s IS NULL`,
		schema.UserAccount.Table, assignments, schema.UserAccount.UpdatedAt,
		schema.UserAccount.ID, schema.UserAccount.DeletedAt)

	tag, err := repository.pool.Exec(context, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return dberr.ErrNotFound
	}
	return nil
}

// MarkVerified updates the user's status to emailverified = true.
func (repository *PostgresUserRepository) MarkVerified(context context.Context, userID string) error {
	return repository.exec(context, "postgres_user_repo_mark_verified_failed",
		schema.UserAccount.EmailVerified+" = TRUE", userID)
}

// SetTOTP persists the confirmed secret, or clears it.
func (repository *PostgresUserRepository) SetTOTP(context context.Context, userID, secret string, enabled bool) error {
	assignments := fmt.Sprintf("%s = $2, %s = $3", schema.UserAccount.TOTPSecret, schema.UserAccount.TOTPEnabled)
	return repository.exec(context, "postgres_user_repo_set_totp_failed", assignments, userID, nullable(secret), enabled && secret != "")
}

// SetEmailMFA toggles the email second factor.
func (repository *PostgresUserRepository) SetEmailMFA(context context.Context, userID string, enabled bool) error {
	return repository.exec(context, "postgres_user_repo_set_email_mfa_failed",
		schema.UserAccount.EmailMFAEnabled+" = $2", userID, enabled)
}

// TokenVersion reads only the version column. It runs on every authenticated request.
func (repository *PostgresUserRepository) TokenVersion(context context.Context, userID string) (int, error) {
	if !uuid.Valid(userID) {
		return 0, dberr.ErrNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL`,
		schema.UserAccount.TokenVersion, schema.UserAccount.Table,
		schema.UserAccount.ID, schema.UserAccount.DeletedAt)

	var version int
	if err := repository.pool.QueryRow(context, query, userID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, dberr.ErrNotFound
		}
		return 0, fmt.Errorf("postgres_user_repo_token_version_failed: %w", err)
	}
	return version, nil
}

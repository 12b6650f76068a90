// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

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
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// PostgresRepository implements [Repository] on users.session.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL implementation of [Repository].
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var sessionColumns = strings.Join(schema.UserSession.Columns(), ", ")

func scanSession(row pgx.Row) (Session, error) {
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.FamilyID,
		&session.DeviceName,
		&session.IPAddress,
		&session.UserAgent,
		&session.IsActive,
		&session.LastUsedAt,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	return session, err
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

/*
Create persists a new session record into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresRepository) Create(context context.Context, session *Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		schema.UserSession.Table,
		schema.UserSession.ID, schema.UserSession.UserID, schema.UserSession.FamilyID,
		schema.UserSession.DeviceName, schema.UserSession.IPAddress, schema.UserSession.UserAgent,
		schema.UserSession.IsActive, schema.UserSession.LastUsedAt, schema.UserSession.ExpiresAt,
		schema.UserSession.CreatedAt,
	)

	if session.ID == "" {
		session.ID = uuid.New()
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.FamilyID,
		session.DeviceName,
		session.IPAddress,
		session.UserAgent,
		session.IsActive,
		session.LastUsedAt,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}
	return nil
}

// Touch updates the last-used timestamp and address of an active session.
func (repository *PostgresRepository) Touch(context context.Context, sessionID, ip string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $2, %s = COALESCE(NULLIF($3, ''), %s)
		WHERE %s = $1 AND %s`,
		schema.UserSession.Table,
		schema.UserSession.LastUsedAt, schema.UserSession.IPAddress, schema.UserSession.IPAddress,
		schema.UserSession.ID, schema.UserSession.IsActive,
	)

	if _, err := repository.pool.Exec(context, query, sessionID, at, ip); err != nil {
		return fmt.Errorf("postgres_session_repo_touch_failed: %w", err)
	}
	return nil
}

// ListActive lists all valid, non-expired sessions for a user.
func (repository *PostgresRepository) ListActive(context context.Context, userID string, now time.Time) ([]Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = $1 AND %s AND %s > $2
		ORDER BY %s DESC`,
		sessionColumns, schema.UserSession.Table,
		schema.UserSession.UserID, schema.UserSession.IsActive, schema.UserSession.ExpiresAt,
		schema.UserSession.LastUsedAt,
	)

	rows, err := repository.pool.Query(context, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	return sessions, nil
}

// Deactivate revokes one session owned by userID and returns it.
func (repository *PostgresRepository) Deactivate(context context.Context, userID, sessionID string, at time.Time) (*Session, error) {
	if !uuid.Valid(sessionID) {
		return nil, dberr.ErrNotFound
	}

	query := fmt.Sprintf(`
		UPDATE %s SET %s = FALSE, %s = $3
		WHERE %s = $1 AND %s = $2 AND %s
		RETURNING %s`,
		schema.UserSession.Table, schema.UserSession.IsActive, schema.UserSession.RevokedAt,
		schema.UserSession.ID, schema.UserSession.UserID, schema.UserSession.IsActive,
		sessionColumns,
	)

	session, err := scanSession(repository.pool.QueryRow(context, query, sessionID, userID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dberr.ErrNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_deactivate_failed: %w", err)
	}
	return &session, nil
}

// DeactivateAll revokes every active session of the user except keepID.
func (repository *PostgresRepository) DeactivateAll(context context.Context, userID, keepID string, at time.Time) ([]Session, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = FALSE, %s = $3
		WHERE %s = $1 AND %s AND %s::text <> $2
		RETURNING %s`,
		schema.UserSession.Table, schema.UserSession.IsActive, schema.UserSession.RevokedAt,
		schema.UserSession.UserID, schema.UserSession.IsActive, schema.UserSession.ID,
		sessionColumns,
	)

	rows, err := repository.pool.Query(context, query, userID, keepID, at)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_deactivate_all_failed: %w", err)
	}

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_deactivate_all_failed: %w", err)
	}
	return sessions, nil
}

// DeleteExpired permanently removes all sessions that expired before cutoff.
func (repository *PostgresRepository) DeleteExpired(context context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s <= $1`, schema.UserSession.Table, schema.UserSession.ExpiresAt)

	tag, err := repository.pool.Exec(context, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

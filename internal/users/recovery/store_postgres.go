// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/shopauth/internal/platform/database/schema"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// PostgresRepository implements [Repository] on users.recoverycode.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL implementation of [Repository].
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var codeColumns = strings.Join(schema.UserRecoveryCode.Columns(), ", ")

/*
ReplaceAll swaps the user's batch inside one transaction, so a crash never
leaves the account with both batches or with none.

Parameters:
  - context: context.Context
  - userID: string
  - codes: []Code

Returns:
  - error: Storage failures
*/
func (repository *PostgresRepository) ReplaceAll(context context.Context, userID string, codes []Code) error {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		schema.UserRecoveryCode.Table, schema.UserRecoveryCode.UserID)

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5)`,
		schema.UserRecoveryCode.Table,
		schema.UserRecoveryCode.ID, schema.UserRecoveryCode.UserID, schema.UserRecoveryCode.CodeHash,
		schema.UserRecoveryCode.ExpiresAt, schema.UserRecoveryCode.CreatedAt,
	)

	return pgx.BeginFunc(context, repository.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(context, deleteQuery, userID); err != nil {
			return fmt.Errorf("postgres_recovery_repo_delete_failed: %w", err)
		}

		batch := &pgx.Batch{}
		for _, code := range codes {
			batch.Queue(insertQuery, code.ID, userID, code.CodeHash, code.ExpiresAt, code.CreatedAt)
		}
		if err := tx.SendBatch(context, batch).Close(); err != nil {
			return fmt.Errorf("postgres_recovery_repo_insert_failed: %w", err)
		}
		return nil
	})
}

// List returns the user's codes in creation order.
func (repository *PostgresRepository) List(context context.Context, userID string) ([]Code, error) {
	if !uuid.Valid(userID) {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s ASC`,
		codeColumns, schema.UserRecoveryCode.Table,
		schema.UserRecoveryCode.UserID, schema.UserRecoveryCode.CreatedAt,
	)

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_recovery_repo_list_failed: %w", err)
	}

	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Code, error) {
		var code Code
		err := row.Scan(
			&code.ID,
			&code.UserID,
			&code.CodeHash,
			&code.Used,
			&code.UsedAt,
			&code.UsedIP,
			&code.UsedUserAgent,
			&code.FailedAttempts,
			&code.ExpiresAt,
			&code.CreatedAt,
		)
		return code, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres_recovery_repo_list_failed: %w", err)
	}
	return codes, nil
}

// MarkUsed redeems the code only if no concurrent request got there first.
func (repository *PostgresRepository) MarkUsed(context context.Context, codeID string, at time.Time, origin Origin) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = TRUE, %s = $2, %s = $3, %s = $4
		WHERE %s = $1 AND NOT %s`,
		schema.UserRecoveryCode.Table,
		schema.UserRecoveryCode.IsUsed, schema.UserRecoveryCode.UsedAt,
		schema.UserRecoveryCode.UsedIP, schema.UserRecoveryCode.UsedUserAgent,
		schema.UserRecoveryCode.ID, schema.UserRecoveryCode.IsUsed,
	)

	tag, err := repository.pool.Exec(context, query, codeID, at, origin.IP, origin.UserAgent)
	if err != nil {
		return false, fmt.Errorf("postgres_recovery_repo_mark_used_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementFailure adds one failed attempt to the record.
func (repository *PostgresRepository) IncrementFailure(context context.Context, codeID string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE %s = $1`,
		schema.UserRecoveryCode.Table,
		schema.UserRecoveryCode.FailedAttempts, schema.UserRecoveryCode.FailedAttempts,
		schema.UserRecoveryCode.ID,
	)

	if _, err := repository.pool.Exec(context, query, codeID); err != nil {
		return fmt.Errorf("postgres_recovery_repo_increment_failed: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/parkspot/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。dataは空のJSONオブジェクトで初期化する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, expires_at, created_at, updated_at)
		 VALUES ($1, '{}'::jsonb, $2, $3, $3)`,
		session.ID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetDataValue はセッションのdataから指定キーの値を取得する。
// セッションまたはキーが存在しない場合はnilを返す。
func (r *PostgresSessionRepo) GetDataValue(ctx context.Context, sessionID, key string) (json.RawMessage, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data -> $2 FROM sessions WHERE id = $1 AND expires_at > now()`,
		sessionID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}
	if value == nil {
		return nil, nil
	}
	return json.RawMessage(value), nil
}

// SetDataValue はセッションのdataに指定キーの値を設定する。
func (r *PostgresSessionRepo) SetDataValue(ctx context.Context, sessionID, key string, value json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET data = data || jsonb_build_object($2::text, $3::jsonb), updated_at = now()
		 WHERE id = $1`,
		sessionID, key, []byte(value),
	)
	if err != nil {
		return fmt.Errorf("failed to set session data: %w", err)
	}
	return nil
}

// RemoveDataKeys はセッションのdataから指定キーを削除する。
func (r *PostgresSessionRepo) RemoveDataKeys(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET data = data - $2::text[], updated_at = now() WHERE id = $1`,
		sessionID, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to remove session data: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)

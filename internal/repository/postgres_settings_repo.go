package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSettingsRepo はuser_settingsテーブルを使用した設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Get は設定値を取得する。未保存の場合は空文字列とfalseを返す。
func (r *PostgresSettingsRepo) Get(ctx context.Context, userID, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM user_settings WHERE user_id = $1 AND key = $2`,
		userID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get user setting: %w", err)
	}
	return value, true, nil
}

// Put は設定値を冪等にUPSERTする。
func (r *PostgresSettingsRepo) Put(ctx context.Context, userID, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		userID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to put user setting: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)

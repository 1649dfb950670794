package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/lootsy/internal/model"
)

// PostgresClickRepo はPostgreSQLを使用したクリックリポジトリ。
type PostgresClickRepo struct {
	db *sql.DB
}

var _ ClickRepository = (*PostgresClickRepo)(nil)

// NewPostgresClickRepo はPostgresClickRepoを生成する。
func NewPostgresClickRepo(db *sql.DB) *PostgresClickRepo {
	return &PostgresClickRepo{db: db}
}

// Create はクリックを記録する。IDが未設定の場合は生成する。
func (r *PostgresClickRepo) Create(ctx context.Context, click *model.Click) error {
	if click.ID == "" {
		click.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clicks (id, deal_id, ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		click.ID, click.DealID, nullString(click.IP), nullString(click.UserAgent), click.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("クリックの記録に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

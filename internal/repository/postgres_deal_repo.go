package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/lootsy/internal/model"
)

const dealColumns = `id, source, source_id, title, description, category, price, currency,
	link_url, image_url, score, is_featured, created_at, updated_at`

// PostgresDealRepo はPostgreSQLを使用したディールリポジトリ。
type PostgresDealRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ DealRepository = (*PostgresDealRepo)(nil)

// NewPostgresDealRepo はPostgresDealRepoを生成する。
func NewPostgresDealRepo(db *sql.DB) *PostgresDealRepo {
	return &PostgresDealRepo{db: db, now: time.Now}
}

// UpsertAll は(source, source_id)をキーにディールを1トランザクションでUPSERTする。
func (r *PostgresDealRepo) UpsertAll(ctx context.Context, deals []model.Deal) (int, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deals (id, source, source_id, title, description, category, price, currency,
		                    link_url, image_url, score, is_featured, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		 ON CONFLICT (source, source_id) DO UPDATE SET
		     title       = EXCLUDED.title,
		     description = EXCLUDED.description,
		     category    = EXCLUDED.category,
		     price       = EXCLUDED.price,
		     currency    = EXCLUDED.currency,
		     link_url    = EXCLUDED.link_url,
		     image_url   = EXCLUDED.image_url,
		     score       = EXCLUDED.score,
		     is_featured = EXCLUDED.is_featured,
		     updated_at  = EXCLUDED.updated_at
		 RETURNING id`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := r.now()
	// 同じ(source, source_id)が複数回現れても1行として数え、
	// いずれかの出現がおすすめであればその行をおすすめとして残す
	written := make(map[string]struct{}, len(deals))
	featured := make(map[string]struct{})
	for _, d := range deals {
		var id string
		err := stmt.QueryRowContext(ctx,
			uuid.NewString(), d.Source, d.SourceID, d.Title, d.Description, d.Category, d.Price,
			d.Currency, d.LinkURL, d.ImageURL, d.Score, d.IsFeatured, now,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("ディールのUPSERTに失敗しました (source=%s, source_id=%s): %w", d.Source, d.SourceID, err)
		}
		written[id] = struct{}{}
		if d.IsFeatured {
			featured[id] = struct{}{}
		}
	}

	if len(featured) > 0 {
		featuredIDs := make([]string, 0, len(featured))
		for id := range featured {
			featuredIDs = append(featuredIDs, id)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE deals SET is_featured = (id = ANY($1::uuid[]))
			 WHERE is_featured OR id = ANY($1::uuid[])`,
			pq.Array(featuredIDs),
		)
		if err != nil {
			return 0, fmt.Errorf("おすすめフラグの更新に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(written), nil
}

// List は条件に一致するディールを表示順で返す。
func (r *PostgresDealRepo) List(ctx context.Context, filter model.DealFilter) ([]model.Deal, error) {
	var (
		conds []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(title ILIKE $%d ESCAPE '\' OR description ILIKE $%d ESCAPE '\')`, n, n))
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		args = append(args, c)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}

	query := "SELECT " + dealColumns + " FROM deals"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY is_featured DESC, score DESC, updated_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ディール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	deals := []model.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("ディールのスキャンに失敗しました: %w", err)
		}
		deals = append(deals, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ディール一覧の走査に失敗しました: %w", err)
	}
	return deals, nil
}

// FindByID は指定IDのディールを取得する。見つからない場合はnilを返す。
// UUIDとして不正なIDも見つからない扱いとする。
func (r *PostgresDealRepo) FindByID(ctx context.Context, id string) (*model.Deal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = $1", id)
	d, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ディールの取得に失敗しました: %w", err)
	}
	return d, nil
}

// ListIDs は更新日時の新しい順にディールIDを返す。
func (r *PostgresDealRepo) ListIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM deals ORDER BY updated_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ディールIDの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ディールIDのスキャンに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(s rowScanner) (*model.Deal, error) {
	d := &model.Deal{}
	var description, category sql.NullString
	var price sql.NullFloat64

	err := s.Scan(
		&d.ID, &d.Source, &d.SourceID, &d.Title, &description, &category, &price, &d.Currency,
		&d.LinkURL, &d.ImageURL, &d.Score, &d.IsFeatured, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Description = nullStringPtr(description)
	d.Category = nullStringPtr(category)
	if price.Valid {
		d.Price = &price.Float64
	}
	return d, nil
}

// nullStringPtr はsql.NullStringを*stringに変換する。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// escapeLike はLIKEパターンのワイルドカードをエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Package cleanup は保持期間を過ぎたクリック記録と、
// 同期で更新されなくなったディールを削除するジョブを提供する。
// 外部のcronなどから1回ずつ起動されることを前提とする。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	// DefaultClickRetentionDays はクリック記録の保持日数のデフォルト値。
	DefaultClickRetentionDays = 90
	// DefaultDealRetentionDays はディールの保持日数のデフォルト値。
	DefaultDealRetentionDays = 30
)

const (
	deleteClicksQuery = `DELETE FROM clicks WHERE created_at < now() - $1::interval`
	// おすすめのディールは同期が止まっていても一覧の先頭に残す
	deleteDealsQuery = `DELETE FROM deals WHERE NOT is_featured AND updated_at < now() - $1::interval`
)

// Result はクリーンアップで削除した件数。
type Result struct {
	Clicks int64 `json:"clicks"`
	Deals  int64 `json:"deals"`
}

// CleanupJob は保持期間を超過したデータの削除ジョブ。
// 削除対象がなくてもエラーにならず、何度実行しても同じ結果になる。
type CleanupJob struct {
	db                 Executor
	logger             *slog.Logger
	ClickRetentionDays int
	DealRetentionDays  int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                 db,
		logger:             logger,
		ClickRetentionDays: DefaultClickRetentionDays,
		DealRetentionDays:  DefaultDealRetentionDays,
	}
}

// Run はクリック記録を先に、続いて古いディールを削除する。
// ディールの削除に伴うクリック記録はCASCADEで消えるため件数には含めない。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	clicks, err := j.deleteOlderThan(ctx, "clicks", deleteClicksQuery, j.ClickRetentionDays)
	if err != nil {
		return res, err
	}
	res.Clicks = clicks

	deals, err := j.deleteOlderThan(ctx, "deals", deleteDealsQuery, j.DealRetentionDays)
	if err != nil {
		return res, err
	}
	res.Deals = deals

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_clicks", res.Clicks),
		slog.Int64("deleted_deals", res.Deals),
		slog.Int("click_retention_days", j.ClickRetentionDays),
		slog.Int("deal_retention_days", j.DealRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

func (j *CleanupJob) deleteOlderThan(ctx context.Context, table, query string, days int) (int64, error) {
	interval := fmt.Sprintf("%d days", days)

	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
			slog.Int("retention_days", days),
		)
		return 0, fmt.Errorf("%sのクリーンアップに失敗: %w", table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

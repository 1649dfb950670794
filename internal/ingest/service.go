// Package ingest はディール同期パイプライン（取得→リライト→正規化→重複除去→おすすめ選定→保存）を提供する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/lootsy/internal/affiliate"
	"github.com/hitoshi/lootsy/internal/deal"
	"github.com/hitoshi/lootsy/internal/metrics"
	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/rewrite"
)

// DealSource は未正規化ディールの取得元のインターフェース。
type DealSource interface {
	FetchDeals(ctx context.Context) ([]model.RawDeal, affiliate.ProbeResult)
}

// DealRewriter はテキストリライトのインターフェース。失敗しない。
type DealRewriter interface {
	Rewrite(ctx context.Context, raws []model.RawDeal) rewrite.Result
}

// DealUpserter はディール保存のインターフェース。
type DealUpserter interface {
	Upsert(ctx context.Context, deals []model.Deal) (int, error)
}

// Result は1回の同期結果。
type Result struct {
	Count           int
	Source          string
	ProbeReason     string
	RewriteStrategy string
	FallbackReason  string
}

// Service は同期パイプラインを実行する。
// 同時に発生した同期要求は1回の実行にまとめられる。
type Service struct {
	source   DealSource
	rewriter DealRewriter
	upserter DealUpserter
	metrics  metrics.Recorder
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService はServiceを生成する。
func NewService(
	source DealSource,
	rewriter DealRewriter,
	upserter DealUpserter,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		rewriter: rewriter,
		upserter: upserter,
		metrics:  recorder,
		logger:   logger,
	}
}

// Run は同期パイプラインを1回実行する。実行中に呼ばれた場合は実行中の結果を共有する。
func (s *Service) Run(ctx context.Context) (Result, error) {
	v, err, shared := s.group.Do("sync", func() (any, error) {
		return s.run(ctx)
	})
	if shared {
		s.logger.Info("実行中の同期結果を共有しました")
	}
	result, _ := v.(Result)
	return result, err
}

func (s *Service) run(ctx context.Context) (Result, error) {
	start := time.Now()

	raws, probe := s.source.FetchDeals(ctx)
	result := Result{ProbeReason: probe.Reason}
	if len(raws) > 0 {
		result.Source = raws[0].Source
	}

	rewritten := s.rewriter.Rewrite(ctx, raws)
	result.RewriteStrategy = rewritten.Strategy
	result.FallbackReason = rewritten.FallbackReason

	deals := deal.EnsureOneFeatured(deal.DedupeByIdentity(deal.NormalizeAll(rewritten.Deals)))

	count, err := s.upserter.Upsert(ctx, deals)
	s.metrics.RecordSyncRun(result.Source, err)
	if err != nil {
		s.logger.Error("同期に失敗しました",
			slog.String("source", result.Source),
			slog.Int("deals", len(deals)),
			slog.String("error", err.Error()),
		)
		return result, fmt.Errorf("同期に失敗: %w", err)
	}

	result.Count = count
	s.metrics.RecordDealsUpserted(count)
	s.logger.Info("同期が完了しました",
		slog.String("source", result.Source),
		slog.Int("count", count),
		slog.String("probe_reason", result.ProbeReason),
		slog.String("rewrite_strategy", result.RewriteStrategy),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

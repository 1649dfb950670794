// Package rewrite はディールのテキスト改善（LLM）とキーワード分類によるフォールバックを提供する。
package rewrite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/lootsy/internal/metrics"
	"github.com/hitoshi/lootsy/internal/model"
)

// Rewriter はRawDealを改善したEnrichedDealへ変換する。失敗時はエラーを返す。
type Rewriter interface {
	Rewrite(ctx context.Context, raws []model.RawDeal) ([]model.EnrichedDeal, error)
}

// 採用された戦略
const (
	StrategyLLM     = "llm"
	StrategyKeyword = "keyword"
)

// フォールバック理由
const (
	FallbackMissingKey = "missing_key"
	FallbackTimeout    = "timeout"
	FallbackError      = "error"
	FallbackMalformed  = "malformed"
)

// Result はリライト結果と採用された戦略。
type Result struct {
	Deals          []model.EnrichedDeal
	Strategy       string
	FallbackReason string
}

// Service はLLMリライタとキーワード分類を組み合わせた、失敗しないリライトサービス。
type Service struct {
	rewriter Rewriter
	fallback KeywordClassifier
	timeout  time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewService はServiceを生成する。rewriterがnilの場合は常にキーワード分類を使う。
func NewService(rewriter Rewriter, timeout time.Duration, recorder metrics.Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rewriter: rewriter,
		timeout:  timeout,
		metrics:  recorder,
		logger:   logger,
	}
}

// Rewrite はLLMでのリライトを試み、あらゆる失敗でキーワード分類にフォールバックする。
// 呼び出し側がエラー処理をする必要はない。
func (s *Service) Rewrite(ctx context.Context, raws []model.RawDeal) Result {
	if len(raws) == 0 {
		return Result{Deals: []model.EnrichedDeal{}, Strategy: StrategyKeyword}
	}

	if s.rewriter == nil {
		return s.fallbackResult(raws, FallbackMissingKey, nil)
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	deals, err := s.rewriter.Rewrite(callCtx, raws)
	switch {
	case err == nil && len(deals) == len(raws):
		s.logger.Info("LLMでディールをリライトしました", slog.Int("count", len(deals)))
		return Result{Deals: deals, Strategy: StrategyLLM}
	case err == nil:
		return s.fallbackResult(raws, FallbackMalformed, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return s.fallbackResult(raws, FallbackTimeout, err)
	case errors.Is(err, ErrMalformedResponse):
		return s.fallbackResult(raws, FallbackMalformed, err)
	default:
		return s.fallbackResult(raws, FallbackError, err)
	}
}

func (s *Service) fallbackResult(raws []model.RawDeal, reason string, err error) Result {
	attrs := []any{slog.String("reason", reason), slog.Int("count", len(raws))}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if reason == FallbackMissingKey {
		s.logger.Info("LLMキーが未設定のためキーワード分類を使用します", attrs...)
	} else {
		s.logger.Warn("リライトに失敗したためキーワード分類を使用します", attrs...)
	}
	s.metrics.RecordRewriteFallback(reason)

	return Result{
		Deals:          s.fallback.Enrich(raws),
		Strategy:       StrategyKeyword,
		FallbackReason: reason,
	}
}

package affiliate

import (
	"context"
	"log/slog"

	"github.com/hitoshi/lootsy/internal/model"
)

// DealProber はエンドポイント探索のインターフェース。
type DealProber interface {
	Probe(ctx context.Context) ProbeResult
}

// Source はProberの結果が空の場合にサンプルデータへフォールバックするディール取得元。
type Source struct {
	prober DealProber
	logger *slog.Logger
}

// NewSource はSourceを生成する。
func NewSource(prober DealProber, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{prober: prober, logger: logger}
}

// FetchDeals はアフィリエイトAPIからディールを取得する。
// APIキー未設定または全候補の失敗で結果が空の場合は同梱のサンプルディールを返す。
func (s *Source) FetchDeals(ctx context.Context) ([]model.RawDeal, ProbeResult) {
	result := s.prober.Probe(ctx)
	if len(result.Deals) > 0 {
		return result.Deals, result
	}

	s.logger.Warn("アフィリエイトAPIから取得できなかったためサンプルディールを使用します",
		slog.String("reason", result.Reason),
		slog.Int("attempts", len(result.Attempts)),
	)
	return SampleDeals(), result
}

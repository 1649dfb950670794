package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/lootsy/internal/affiliate"
	"github.com/hitoshi/lootsy/internal/model"
)

// debugSampleSize はデバッグ応答に含めるディールの最大件数。
const debugSampleSize = 5

// DealFetcher はアフィリエイトAPIからディールを取得するインターフェース。
type DealFetcher interface {
	FetchDeals(ctx context.Context) ([]model.RawDeal, affiliate.ProbeResult)
}

// DebugHandler は運用確認用のデバッグエンドポイントのHTTPハンドラー。
// enabledがfalseの場合は全エンドポイントがDEBUG_DISABLEDを返す。
type DebugHandler struct {
	fetcher  DealFetcher
	enabled  bool
	envFlags map[string]bool
}

// NewDebugHandler はDebugHandlerを生成する。
// envFlagsには設定項目名ごとの設定有無を渡す（値そのものは渡さない）。
func NewDebugHandler(fetcher DealFetcher, enabled bool, envFlags map[string]bool) *DebugHandler {
	return &DebugHandler{fetcher: fetcher, enabled: enabled, envFlags: envFlags}
}

// debugSample はデバッグ応答に含めるディールの要約。
type debugSample struct {
	Source   string  `json:"source"`
	SourceID string  `json:"source_id"`
	Title    string  `json:"title"`
	LinkURL  string  `json:"link_url"`
	ImageURL *string `json:"image_url"`
	Category *string `json:"category"`
}

type debugProbe struct {
	Reason    string               `json:"reason"`
	Base      string               `json:"base,omitempty"`
	AuthStyle string               `json:"authStyle,omitempty"`
	Path      string               `json:"path,omitempty"`
	Shape     string               `json:"shape,omitempty"`
	Attempts  []model.ProbeAttempt `json:"attempts"`
}

type debugAdrevenueResponse struct {
	OK     bool          `json:"ok"`
	Count  int           `json:"count"`
	Sample []debugSample `json:"sample"`
	Debug  debugProbe    `json:"debug"`
}

// Adrevenue はエンドポイント探索を実行し、取得件数・先頭サンプル・試行履歴を返す。
// GET /api/debug/adrevenue
func (h *DebugHandler) Adrevenue(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewDebugDisabledError())
		return
	}

	deals, probe := h.fetcher.FetchDeals(r.Context())

	n := min(len(deals), debugSampleSize)
	sample := make([]debugSample, 0, n)
	for _, d := range deals[:n] {
		sample = append(sample, debugSample{
			Source:   d.Source,
			SourceID: d.SourceID,
			Title:    d.Title,
			LinkURL:  d.LinkURL,
			ImageURL: d.ImageURL,
			Category: d.Category,
		})
	}

	attempts := probe.Attempts
	if attempts == nil {
		attempts = []model.ProbeAttempt{}
	}

	writeJSON(w, http.StatusOK, debugAdrevenueResponse{
		OK:     true,
		Count:  len(deals),
		Sample: sample,
		Debug: debugProbe{
			Reason:    probe.Reason,
			Base:      probe.Base,
			AuthStyle: probe.AuthStyle,
			Path:      probe.Path,
			Shape:     probe.Shape,
			Attempts:  attempts,
		},
	})
}

// Env は主要な設定項目が設定されているかどうかを返す。
// GET /api/debug/env
func (h *DebugHandler) Env(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewDebugDisabledError())
		return
	}

	flags := make(map[string]bool, len(h.envFlags))
	for k, v := range h.envFlags {
		flags[k] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "env": flags})
}

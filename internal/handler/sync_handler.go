package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/lootsy/internal/ingest"
	"github.com/hitoshi/lootsy/internal/model"
)

// SyncRunner は同期パイプラインを1回実行するインターフェース。
type SyncRunner interface {
	Run(ctx context.Context) (ingest.Result, error)
}

// SyncHandler は同期エンドポイントのHTTPハンドラー。
type SyncHandler struct {
	runner SyncRunner
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// syncResponse は同期成功時のレスポンス。
type syncResponse struct {
	OK              bool   `json:"ok"`
	Count           int    `json:"count"`
	Source          string `json:"source,omitempty"`
	RewriteStrategy string `json:"rewrite,omitempty"`
}

// Sync は取得から保存までのパイプラインを実行し、保存件数を返す。
// GET|POST /api/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		slog.Error("同期に失敗しました", slog.String("error", err.Error()))

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = model.NewSyncFailedError(err.Error())
		}
		writeAPIErrorResponse(w, http.StatusInternalServerError, apiErr)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		OK:              true,
		Count:           result.Count,
		Source:          result.Source,
		RewriteStrategy: result.RewriteStrategy,
	})
}

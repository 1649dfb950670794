package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/lootsy/internal/middleware"
	"github.com/hitoshi/lootsy/internal/model"
)

// DealReader はディールの読み取りに必要なサービスインターフェース。
type DealReader interface {
	// List は絞り込み条件に一致するディールを表示順で返す。
	List(ctx context.Context, filter model.DealFilter) ([]model.Deal, error)
	// Get は指定IDのディールを返す。
	Get(ctx context.Context, id string) (*model.Deal, error)
	// Featured は現在のおすすめディールを返す。
	Featured(ctx context.Context) (*model.Deal, error)
	// ListIDs はサイトマップ用のディールIDを返す。
	ListIDs(ctx context.Context) ([]string, error)
}

// ClickResolver はリダイレクト先の解決とクリック記録を行うインターフェース。
type ClickResolver interface {
	Resolve(ctx context.Context, id, ip, userAgent string) (string, error)
}

// DealHandler は公開ディールAPIのHTTPハンドラー。
type DealHandler struct {
	reader   DealReader
	resolver ClickResolver
}

// NewDealHandler はDealHandlerを生成する。
func NewDealHandler(reader DealReader, resolver ClickResolver) *DealHandler {
	return &DealHandler{reader: reader, resolver: resolver}
}

// ListPublic はディール一覧をJSON配列で返す。
// GET /api/public/deals?q=xxx&cat=yyy
func (h *DealHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	filter := model.DealFilter{
		Query:    r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("cat"),
	}

	deals, err := h.reader.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if deals == nil {
		deals = []model.Deal{}
	}
	writeJSON(w, http.StatusOK, deals)
}

// Redirect はクリックを記録してディールの遷移先へ302でリダイレクトする。
// GET /api/redirect?id=xxx
func (h *DealHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	link, err := h.resolver.Resolve(r.Context(), id, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, link, http.StatusFound)
}

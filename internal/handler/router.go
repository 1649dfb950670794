package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lootsy/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ディール
	DealReader    DealReader
	ClickResolver ClickResolver
	SyncRunner    SyncRunner

	// サイト
	BaseURL string

	// デバッグ
	DebugEnabled bool
	DealFetcher  DealFetcher
	EnvFlags     map[string]bool
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → RateLimit(Public|Sync)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	dealHandler := NewDealHandler(deps.DealReader, deps.ClickResolver)
	syncHandler := NewSyncHandler(deps.SyncRunner)
	debugHandler := NewDebugHandler(deps.DealFetcher, deps.DebugEnabled, deps.EnvFlags)
	siteHandler := NewSiteHandler(deps.DealReader, deps.BaseURL, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 同期（専用の厳しいレート制限） ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.SyncMiddleware())
		r.Get("/api/sync", syncHandler.Sync)
		r.Post("/api/sync", syncHandler.Sync)
	})

	// --- 公開API・サイト ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.PublicMiddleware())

		r.Get("/api/public/deals", dealHandler.ListPublic)
		r.Get("/api/redirect", dealHandler.Redirect)

		r.Route("/api/debug", func(r chi.Router) {
			r.Get("/adrevenue", debugHandler.Adrevenue)
			r.Get("/env", debugHandler.Env)
		})

		r.Get("/", siteHandler.Home)
		r.Get("/deal/{id}", siteHandler.Deal)
		r.Get("/about", siteHandler.About)
		r.Get("/contact", siteHandler.Contact)
		r.Get("/privacy", siteHandler.Privacy)
		r.Get("/sitemap.xml", siteHandler.Sitemap)
	})

	r.NotFound(siteHandler.NotFound)

	return r
}

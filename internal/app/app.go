package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/lootsy/internal/affiliate"
	"github.com/hitoshi/lootsy/internal/config"
	"github.com/hitoshi/lootsy/internal/database"
	"github.com/hitoshi/lootsy/internal/deal"
	"github.com/hitoshi/lootsy/internal/handler"
	"github.com/hitoshi/lootsy/internal/ingest"
	"github.com/hitoshi/lootsy/internal/logger"
	"github.com/hitoshi/lootsy/internal/metrics"
	"github.com/hitoshi/lootsy/internal/middleware"
	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/repository"
	"github.com/hitoshi/lootsy/internal/rewrite"
	"github.com/hitoshi/lootsy/internal/worker/cleanup"
	"github.com/hitoshi/lootsy/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数（および.env）からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// components はserve/syncで共有する依存関係一式。
type components struct {
	registry   *prometheus.Registry
	recorder   *metrics.Collector
	source     *affiliate.Source
	sync       *ingest.Service
	reader     *deal.ReadService
	redirector *deal.Redirector
}

// wire はDB接続と設定から全コンポーネントを構築する。
func wire(ctx context.Context, cfg *config.Config, db *sql.DB) *components {
	log := slog.Default()

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	// 2. リポジトリ
	dealRepo := repository.NewPostgresDealRepo(db)
	clickRepo := repository.NewPostgresClickRepo(db)

	// 3. セキュリティ
	guard := security.NewOutboundGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. 取得（Prober → Mapper、空ならサンプル）
	mapper := affiliate.NewMapper(model.SourceAdrevenue, sanitizer)
	prober := affiliate.NewProber(affiliate.Config{
		Base:        cfg.AdrevenueAPIBase,
		APIKey:      cfg.AdrevenueAPIKey,
		ChannelID:   cfg.AdrevenueChannelID,
		ProgramIDs:  cfg.AdrevenueProgramIDs,
		Timeout:     cfg.ProbeTimeout,
		MaxBodySize: cfg.ProbeMaxBodySize,
	}, guard.NewSafeClient(cfg.ProbeTimeout), mapper, guard, recorder, log)
	source := affiliate.NewSource(prober, log)

	// 5. リライト（キー未設定時はキーワード分類のみ）
	var rewriter rewrite.Rewriter
	llm, err := rewrite.NewGeminiRewriter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, sanitizer)
	if err != nil {
		log.Warn("LLMクライアントの初期化に失敗したためキーワード分類を使用します", slog.String("error", err.Error()))
	} else if llm != nil {
		rewriter = llm
	}
	rewriteSvc := rewrite.NewService(rewriter, cfg.RewriteTimeout, recorder, log)

	// 6. 保存・同期・読み取り
	upsertSvc := deal.NewUpsertService(dealRepo, log)
	syncSvc := ingest.NewService(source, rewriteSvc, upsertSvc, recorder, log)

	return &components{
		registry:   registry,
		recorder:   recorder,
		source:     source,
		sync:       syncSvc,
		reader:     deal.NewReadService(dealRepo, cfg.PublicListLimit),
		redirector: deal.NewRedirector(dealRepo, clickRepo, recorder, log),
	}
}

// openDB はプール設定を適用したDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established",
		slog.Int("max_open_conns", cfg.DBMaxOpenConns),
	)
	return db, nil
}

// runServe はHTTPサーバーモードで起動する。
// DB接続を開き、マイグレーションを適用し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続とマイグレーション
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 2. コンポーネントの構築
	c := wire(ctx, cfg, db)

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitPublic, cfg.RateLimitSync),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(c.registry),

		DealReader:    c.reader,
		ClickResolver: c.redirector,
		SyncRunner:    c.sync,

		BaseURL: cfg.BaseURL,

		DebugEnabled: cfg.DebugEndpoints,
		DealFetcher:  c.source,
		EnvFlags:     cfg.Presence(),
	})

	// 4. HTTPサーバーの起動
	// 同期はプローブとLLM呼び出しを含むため、WriteTimeoutはそれらのタイムアウトより長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.ProbeTimeout + cfg.RewriteTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// syncSummary は同期コマンドの標準出力。
type syncSummary struct {
	OK              bool   `json:"ok"`
	Count           int    `json:"count"`
	Source          string `json:"source"`
	ProbeReason     string `json:"probe_reason,omitempty"`
	RewriteStrategy string `json:"rewrite"`
	FallbackReason  string `json:"fallback_reason,omitempty"`
}

// runSync は同期パイプラインを1回実行する。
// cron等の外部スケジューラから起動する想定。結果はJSONでoutに書き出す。
func runSync(cfg *config.Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	c := wire(ctx, cfg, db)

	result, err := c.sync.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	return enc.Encode(syncSummary{
		OK:              true,
		Count:           result.Count,
		Source:          result.Source,
		ProbeReason:     result.ProbeReason,
		RewriteStrategy: result.RewriteStrategy,
		FallbackReason:  result.FallbackReason,
	})
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// cleanupSummary はクリーンアップコマンドの標準出力。
type cleanupSummary struct {
	OK            bool  `json:"ok"`
	DeletedClicks int64 `json:"deleted_clicks"`
	DeletedDeals  int64 `json:"deleted_deals"`
}

// runCleanup は保持期間を過ぎたクリック記録とディールを削除し、件数をJSONで出力する。
func runCleanup(cfg *config.Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.ClickRetentionDays = cfg.ClickRetentionDays
	job.DealRetentionDays = cfg.DealRetentionDays

	result, err := job.Run(ctx)
	if err != nil {
		return err
	}

	return json.NewEncoder(out).Encode(cleanupSummary{
		OK:            true,
		DeletedClicks: result.Clicks,
		DeletedDeals:  result.Deals,
	})
}

func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration status unavailable: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はヘルスチェック対象のポートを返す。
// 設定全体を読み込まずにSERVER_PORTのみを参照する。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Server
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL           string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`
	DebugEndpoints    bool   `env:"DEBUG_ENDPOINTS" envDefault:"false"`

	// Affiliate API
	AdrevenueAPIBase    string   `env:"ADREVENUE_API_BASE"`
	AdrevenueAPIKey     string   `env:"ADREVENUE_API_KEY"`
	AdrevenueChannelID  string   `env:"ADREVENUE_CHANNEL_ID"`
	AdrevenueProgramIDs []string `env:"ADREVENUE_PROGRAM_IDS" envSeparator:","`
	AdrecordAPIBase     string   `env:"ADRECORD_API_BASE"`
	AdrecordAPIKey      string   `env:"ADRECORD_API_KEY"`

	// Probe
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" envDefault:"12s"`
	ProbeMaxBodySize int64         `env:"PROBE_MAX_BODY_SIZE" envDefault:"5242880"`

	// Rewrite
	GeminiAPIKey   string        `env:"GEMINI_API_KEY"`
	GeminiModel    string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	RewriteTimeout time.Duration `env:"REWRITE_TIMEOUT" envDefault:"20s"`

	// Public
	PublicListLimit int `env:"PUBLIC_LIST_LIMIT" envDefault:"60"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitPublic int `env:"RATE_LIMIT_PUBLIC" envDefault:"120"`
	RateLimitSync   int `env:"RATE_LIMIT_SYNC" envDefault:"6"`

	// Retention（日数）
	ClickRetentionDays int `env:"CLICK_RETENTION_DAYS" envDefault:"90"`
	DealRetentionDays  int `env:"DEAL_RETENTION_DAYS" envDefault:"30"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 既に設定されている環境変数は.envで上書きされない。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv は環境変数のみからConfigを読み込む。
// 必須環境変数が未設定、または値の形式が不正な場合はエラーを返す。
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// 旧Adrecord向け設定へのフォールバック
	if cfg.AdrevenueAPIKey == "" {
		cfg.AdrevenueAPIKey = cfg.AdrecordAPIKey
	}
	if cfg.AdrevenueAPIBase == "" {
		cfg.AdrevenueAPIBase = cfg.AdrecordAPIBase
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.AdrevenueProgramIDs = compact(cfg.AdrevenueProgramIDs)

	if cfg.PublicListLimit <= 0 {
		return nil, fmt.Errorf("invalid configuration: PUBLIC_LIST_LIMIT must be positive")
	}
	if cfg.RateLimitPublic <= 0 || cfg.RateLimitSync <= 0 {
		return nil, fmt.Errorf("invalid configuration: rate limits must be positive")
	}
	if cfg.ClickRetentionDays <= 0 || cfg.DealRetentionDays <= 0 {
		return nil, fmt.Errorf("invalid configuration: retention days must be positive")
	}

	return cfg, nil
}

// compact は前後の空白を除去し、空要素を取り除く。
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Presence は主要な設定項目が設定されているかどうかを項目名ごとに返す。
// 値そのものは含めない。
func (c *Config) Presence() map[string]bool {
	return map[string]bool{
		"DATABASE_URL":          c.DatabaseURL != "",
		"BASE_URL":              c.BaseURL != "",
		"ADREVENUE_API_BASE":    c.AdrevenueAPIBase != "",
		"ADREVENUE_API_KEY":     c.AdrevenueAPIKey != "",
		"ADREVENUE_CHANNEL_ID":  c.AdrevenueChannelID != "",
		"ADREVENUE_PROGRAM_IDS": len(c.AdrevenueProgramIDs) > 0,
		"GEMINI_API_KEY":        c.GeminiAPIKey != "",
	}
}

// Package affiliate はアフィリエイトネットワークからのディール取得を提供する。
//
// Proberは候補ベースURL・認証方式・リソースパスの組み合わせを順番に試行し、
// 最初にディールを取得できた組み合わせで打ち切る。
package affiliate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/lootsy/internal/metrics"
	"github.com/hitoshi/lootsy/internal/model"
)

// 探索失敗時の理由コード
const (
	ReasonMissingKey = "missing_key"
	ReasonNoSuccess  = "no_success"
)

// 認証方式
const (
	AuthBearer = "bearer"
	AuthAPIKey = "apikey"
)

const (
	channelsPath   = "/channels"
	bodySampleSize = 300
	userAgent      = "Lootsy/1.0 (+deal sync)"
)

// DefaultFallbackBases は設定されたベースURLの次に試行する既知のベースURL。
var DefaultFallbackBases = []string{
	"https://addrevenue.io/api/v2",
	"https://api.adrevenue.com/v1",
	"https://api.adrecord.com/v1",
}

// DefaultKnownDomains は設定されたベースURLを受け入れる登録可能ドメインの一覧。
var DefaultKnownDomains = []string{"addrevenue.io", "adrevenue.com", "adrecord.com"}

// DefaultOfferPaths はオファー取得で試行するリソースパス。
var DefaultOfferPaths = []string{"/campaigns", "/offers"}

var authStyles = []string{AuthBearer, AuthAPIKey}

// HTTPDoer はHTTPリクエストを実行するクライアントのインターフェース。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// URLValidator はベースURLの静的な安全性検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Config はProberの設定。起動時に1回構築して渡す。
type Config struct {
	Base        string
	APIKey      string
	ChannelID   string
	ProgramIDs  []string
	Timeout     time.Duration
	MaxBodySize int64

	// 未指定の場合はDefault*の値を使用する。
	FallbackBases []string
	KnownDomains  []string
	OfferPaths    []string
}

// ProbeResult は探索結果と診断情報。
type ProbeResult struct {
	Deals     []model.RawDeal
	Attempts  []model.ProbeAttempt
	Reason    string
	Base      string
	AuthStyle string
	Path      string
	Shape     string
}

// Prober はアフィリエイトAPIのエンドポイントを探索する。
type Prober struct {
	cfg       Config
	client    HTTPDoer
	mapper    *Mapper
	validator URLValidator
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewProber はProberを生成する。validatorとrecorderはnilでもよい。
func NewProber(cfg Config, client HTTPDoer, mapper *Mapper, validator URLValidator, recorder metrics.Recorder, logger *slog.Logger) *Prober {
	if len(cfg.FallbackBases) == 0 {
		cfg.FallbackBases = DefaultFallbackBases
	}
	if len(cfg.KnownDomains) == 0 {
		cfg.KnownDomains = DefaultKnownDomains
	}
	if len(cfg.OfferPaths) == 0 {
		cfg.OfferPaths = DefaultOfferPaths
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 5 << 20
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:       cfg,
		client:    client,
		mapper:    mapper,
		validator: validator,
		metrics:   recorder,
		logger:    logger,
	}
}

// Probe は候補の組み合わせを順に試行し、最初に空でないディール一覧を得た時点で返す。
// 個々の通信失敗は診断情報として記録され、探索は継続される。
func (p *Prober) Probe(ctx context.Context) ProbeResult {
	var result ProbeResult

	if strings.TrimSpace(p.cfg.APIKey) == "" {
		result.Reason = ReasonMissingKey
		p.logger.Warn("APIキーが未設定のためプローブをスキップします")
		return result
	}

	for _, base := range p.CandidateBases() {
		for _, style := range authStyles {
			if ctx.Err() != nil {
				result.Reason = ReasonNoSuccess
				return result
			}

			deals, path, shape, ok := p.probePair(ctx, base, style, &result.Attempts)
			if !ok {
				continue
			}

			result.Deals = deals
			result.Base = base
			result.AuthStyle = style
			result.Path = path
			result.Shape = shape
			p.logger.Info("アフィリエイトAPIからディールを取得しました",
				slog.String("base", base),
				slog.String("auth_style", style),
				slog.String("path", path),
				slog.String("shape", shape),
				slog.Int("count", len(deals)),
				slog.Int("attempts", len(result.Attempts)),
			)
			return result
		}
	}

	result.Reason = ReasonNoSuccess
	p.logger.Warn("全ての候補でディールを取得できませんでした",
		slog.Int("attempts", len(result.Attempts)),
	)
	return result
}

// probePair は1つの(ベースURL, 認証方式)についてチャネル探索とオファー取得を行う。
func (p *Prober) probePair(ctx context.Context, base, style string, attempts *[]model.ProbeAttempt) ([]model.RawDeal, string, string, bool) {
	channelID := p.cfg.ChannelID

	if channelID == "" {
		attempt, body := p.call(ctx, base, style, channelsPath, nil)
		*attempts = append(*attempts, attempt)
		// 探索に失敗してもチャネルID無しでオファー取得を続ける
		if attempt.OK {
			channelID = firstChannelID(body)
		}
	}

	var query url.Values
	if channelID != "" {
		query = url.Values{"channelId": []string{channelID}}
	}

	for _, path := range p.cfg.OfferPaths {
		attempt, body := p.call(ctx, base, style, path, query)
		*attempts = append(*attempts, attempt)
		if !attempt.OK {
			continue
		}

		payload := DecodePayload(body)
		items := p.filterPrograms(payload.Items)
		deals := p.mapper.MapAll(items)
		if len(deals) > 0 {
			return deals, path, payload.Kind.String(), true
		}
	}

	return nil, "", "", false
}

// call は1回分のHTTPリクエストを個別のタイムアウト付きで実行する。
func (p *Prober) call(ctx context.Context, base, style, path string, query url.Values) (model.ProbeAttempt, []byte) {
	attempt := model.ProbeAttempt{Base: base, AuthStyle: style, Path: path}

	reqURL := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.metrics.RecordProbeAttempt(style, attempt.Status, attempt.OK, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		attempt.Error = fmt.Sprintf("build request: %v", err)
		return attempt, nil
	}
	req.Header.Set("Accept", "application/json, application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", userAgent)
	switch style {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	case AuthAPIKey:
		req.Header.Set("X-Api-Key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		attempt.Error = err.Error()
		p.logger.Warn("プローブのHTTPリクエストに失敗しました",
			slog.String("base", base),
			slog.String("auth_style", style),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return attempt, nil
	}
	defer resp.Body.Close()

	attempt.Status = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodySize))
	if err != nil {
		attempt.Error = fmt.Sprintf("read body: %v", err)
		return attempt, nil
	}
	attempt.BodySample = truncate(string(body), bodySampleSize)
	attempt.OK = resp.StatusCode >= 200 && resp.StatusCode < 300

	p.logger.Debug("プローブ結果",
		slog.String("base", base),
		slog.String("auth_style", style),
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return attempt, body
}

// CandidateBases は試行するベースURLを優先順に返す。
// 設定されたベースURLは既知のベンダードメインに一致する場合のみ先頭に加える。
func (p *Prober) CandidateBases() []string {
	var bases []string
	add := func(b string) {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b == "" || slices.Contains(bases, b) {
			return
		}
		if p.validator != nil {
			if err := p.validator.ValidateURL(b); err != nil {
				p.logger.Warn("安全でないベースURLを除外しました",
					slog.String("base", b),
					slog.String("error", err.Error()),
				)
				return
			}
		}
		bases = append(bases, b)
	}

	if p.cfg.Base != "" && matchesKnownDomain(p.cfg.Base, p.cfg.KnownDomains) {
		add(p.cfg.Base)
	}
	for _, b := range p.cfg.FallbackBases {
		add(b)
	}
	return bases
}

// matchesKnownDomain はURLの登録可能ドメインが既知ドメインのいずれかと一致するかを判定する。
// IPアドレスの場合はホストそのものを比較する。
func matchesKnownDomain(rawURL string, known []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	registrable := host
	if net.ParseIP(host) == nil {
		if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			registrable = d
		}
	}
	for _, k := range known {
		if strings.EqualFold(registrable, k) {
			return true
		}
	}
	return false
}

// filterPrograms はプログラム許可リストが設定されている場合、一致するアイテムのみを残す。
func (p *Prober) filterPrograms(items []VendorItem) []VendorItem {
	if len(p.cfg.ProgramIDs) == 0 {
		return items
	}
	kept := make([]VendorItem, 0, len(items))
	for _, item := range items {
		id := lookupString(item, "programId", "program_id", "advertiserId", "advertiser_id", "program.id")
		if id != "" && slices.Contains(p.cfg.ProgramIDs, id) {
			kept = append(kept, item)
		}
	}
	return kept
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

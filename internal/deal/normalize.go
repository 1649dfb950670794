// Package deal はディールの正規化、おすすめ選定、保存、公開読み取りを提供する。
package deal

import (
	"math"
	"strings"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/security"
)

const (
	// PlaceholderImage は画像URLが無効な場合に使用する固定画像。
	PlaceholderImage = "https://images.unsplash.com/photo-1557683316-973673baf926?auto=format&fit=crop&w=1200&q=60"
	// PlaceholderLink はリンクURLが無効な場合に使用する安全なプレースホルダ。
	PlaceholderLink = "#"
	// DefaultCurrency は通貨が無効な場合に使用する通貨コード。
	DefaultCurrency = "SEK"
	// DefaultScore はスコアが無効な場合に使用する値。
	DefaultScore = 50.0
	// MaxScore はスコアの上限。
	MaxScore = 100.0
)

// acceptedCurrencies はサイトで扱う通貨コード。
var acceptedCurrencies = map[string]bool{
	"SEK": true,
}

// Normalize はEnrichedDealの各フィールドを修復・補完してDealに変換する。
// 冪等であり、Normalize(Normalize(d))はNormalize(d)と等しい。タイトルは変更しない。
func Normalize(e model.EnrichedDeal) model.Deal {
	return model.Deal{
		Source:      e.Source,
		SourceID:    e.SourceID,
		Title:       e.Title,
		Description: copyString(e.Description),
		Category:    copyString(e.Category),
		Price:       normalizePrice(e.Price),
		Currency:    normalizeCurrency(e.Currency),
		LinkURL:     normalizeLink(e.LinkURL),
		ImageURL:    normalizeImage(e.ImageURL),
		Score:       normalizeScore(e.Score),
		IsFeatured:  e.IsFeatured,
	}
}

// NormalizeAll はバッチ全体を入力順のまま正規化する。
func NormalizeAll(deals []model.EnrichedDeal) []model.Deal {
	out := make([]model.Deal, 0, len(deals))
	for _, e := range deals {
		out = append(out, Normalize(e))
	}
	return out
}

func normalizeCurrency(c *string) string {
	if c == nil {
		return DefaultCurrency
	}
	code := strings.ToUpper(strings.TrimSpace(*c))
	if len(code) == 3 && acceptedCurrencies[code] {
		return code
	}
	return DefaultCurrency
}

func normalizeImage(u *string) string {
	if u == nil {
		return PlaceholderImage
	}
	if s := strings.TrimSpace(*u); security.IsAbsoluteHTTPURL(s) {
		return s
	}
	return PlaceholderImage
}

func normalizeLink(u string) string {
	if s := strings.TrimSpace(u); security.IsAbsoluteHTTPURL(s) {
		return s
	}
	return PlaceholderLink
}

func normalizeScore(s *float64) float64 {
	if s == nil || math.IsNaN(*s) || math.IsInf(*s, 0) {
		return DefaultScore
	}
	return math.Min(math.Max(*s, 0), MaxScore)
}

// normalizePrice は有限かつ0以上の価格のみを採用する。
func normalizePrice(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
		return nil
	}
	v := *p
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

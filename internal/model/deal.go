// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// 取得元タグ
const (
	// SourceAdrevenue はAdrevenueアフィリエイトネットワーク由来のディールを表す。
	SourceAdrevenue = "adrevenue"
	// SourceSample は同梱のサンプルデータ由来のディールを表す。
	SourceSample = "sample"
)

// RawDeal はベンダーペイロードをマッピングした直後の未正規化ディールを表す。
// (Source, SourceID) が自然キーであり、同一の上流アイテムに対して同期ごとに安定している必要がある。
type RawDeal struct {
	Source      string   `json:"source"`
	SourceID    string   `json:"source_id"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
	Currency    *string  `json:"currency"`
	LinkURL     string   `json:"link_url"`
	ImageURL    *string  `json:"image_url"`
}

// FeaturedFlagAliases はおすすめフラグとして受け付けるJSONキーの一覧。
// 先頭から順に探索し、最初に存在したキーの値を採用する。
var FeaturedFlagAliases = []string{"is_featured", "is featured", "isFeatured"}

// EnrichedDeal はテキストリライト後のディールを表す。
// Scoreは未設定または数値以外の場合nilとなる。
type EnrichedDeal struct {
	RawDeal
	Score      *float64
	IsFeatured bool
}

// UnmarshalJSON はRawDealのフィールドに加え、scoreとおすすめフラグの別名を解釈する。
func (e *EnrichedDeal) UnmarshalJSON(data []byte) error {
	var raw RawDeal
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	e.RawDeal = raw
	e.Score = nil
	e.IsFeatured = false

	if v, ok := fields["score"]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		var f float64
		if err := json.Unmarshal(v, &f); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			e.Score = &f
		}
	}

	for _, alias := range FeaturedFlagAliases {
		v, ok := fields[alias]
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return err
		}
		e.IsFeatured = ParseFeaturedFlag(decoded)
		break
	}

	return nil
}

// MarshalJSON は正規のキー名(is_featured)で出力する。
func (e EnrichedDeal) MarshalJSON() ([]byte, error) {
	type out struct {
		RawDeal
		Score      *float64 `json:"score"`
		IsFeatured bool     `json:"is_featured"`
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out{RawDeal: e.RawDeal, Score: e.Score, IsFeatured: e.IsFeatured}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseFeaturedFlag はおすすめフラグの値を真偽値へ変換する。
// bool、"true"/"1"/"yes"等の文字列、0以外の数値を真とみなす。
func ParseFeaturedFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "ja":
			return true
		}
		return false
	case float64:
		return t != 0
	default:
		return false
	}
}

// Deal は永続化される正規化済みディールを表す。
// validateタグは書き込み時のスキーマ検証に使用される。
type Deal struct {
	ID          string    `json:"id"`
	Source      string    `json:"source" validate:"required,max=64"`
	SourceID    string    `json:"source_id" validate:"required,max=256"`
	Title       string    `json:"title" validate:"max=512"`
	Description *string   `json:"description"`
	Category    *string   `json:"category" validate:"omitempty,max=64"`
	Price       *float64  `json:"price" validate:"omitempty,gte=0"`
	Currency    string    `json:"currency" validate:"required,len=3,iso4217"`
	LinkURL     string    `json:"link_url" validate:"required,safelink"`
	ImageURL    string    `json:"image_url" validate:"required,httpurl"`
	Score       float64   `json:"score" validate:"gte=0,lte=100"`
	IsFeatured  bool      `json:"is_featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Click はリダイレクト時に記録されるクリックイベントを表す。
type Click struct {
	ID        string
	DealID    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// DealFilter は公開ディール一覧の絞り込み条件を表す。
// Queryはタイトル/説明の部分一致（大文字小文字を区別しない）、Categoryは完全一致。
type DealFilter struct {
	Query    string
	Category string
	Limit    int
}

// ProbeAttempt はエンドポイント探索1回分の診断情報を表す。永続化はしない。
type ProbeAttempt struct {
	Base       string `json:"base"`
	AuthStyle  string `json:"authStyle"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	OK         bool   `json:"ok"`
	BodySample string `json:"bodySample,omitempty"`
	Error      string `json:"error,omitempty"`
}

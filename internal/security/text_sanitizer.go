package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はベンダーやLLMから受け取った文字列をプレーンテキストに整形する。
type TextSanitizer interface {
	// Sanitize は全てのタグを除去し、HTMLエンティティを復元し、連続する空白を1つにまとめる。
	Sanitize(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを用いたTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

var _ TextSanitizer = (*textSanitizer)(nil)

// Sanitize はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは&等をエスケープして返すため、プレーンテキストへ戻す
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}

// IsAbsoluteHTTPURL は文字列がhttp/httpsスキームかつホストを持つ絶対URLかを判定する。
func IsAbsoluteHTTPURL(raw string) bool {
	if raw == "" || strings.TrimSpace(raw) != raw {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

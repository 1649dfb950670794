package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/security"
)

const (
	maxTitleRunes       = 80
	maxDescriptionRunes = 140
	maxPromptDataBytes  = 7000
)

// ErrMalformedResponse はLLMの出力が解釈できない、または入力と1件も対応しないことを示す。
var ErrMalformedResponse = errors.New("malformed llm response")

// textGenerator はプロンプトからJSON文字列を生成するLLMの境界。
type textGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// geminiGenerator はGemini APIでJSONを生成する。
type geminiGenerator struct {
	client *genai.Client
	model  string
}

func (g *geminiGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.3),
		ResponseMIMEType: "application/json",
		ResponseSchema:   dealListSchema(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text part in gemini response")
	}
	return text, nil
}

func dealListSchema() *genai.Schema {
	categories := make([]string, 0, len(AllCategories()))
	for _, c := range AllCategories() {
		categories = append(categories, string(c))
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"source":      {Type: genai.TypeString},
				"source_id":   {Type: genai.TypeString},
				"title":       {Type: genai.TypeString, Description: "Lockande svensk titel, högst 80 tecken"},
				"description": {Type: genai.TypeString, Description: "Kort CTA, högst 140 tecken"},
				"category":    {Type: genai.TypeString, Enum: categories},
				"score":       {Type: genai.TypeNumber, Description: "0..100"},
				"is_featured": {Type: genai.TypeBoolean},
			},
			Required: []string{"source", "source_id", "title", "score", "is_featured"},
		},
	}
}

// LLMRewriter はLLMでタイトル・説明・カテゴリ・スコアを改善するリライタ。
type LLMRewriter struct {
	generator textGenerator
	sanitizer security.TextSanitizer
}

// NewGeminiRewriter はGemini APIを使うLLMRewriterを生成する。
// apiKeyが空の場合はnilを返し、呼び出し側はキーワード分類のみを使う。
func NewGeminiRewriter(ctx context.Context, apiKey, modelID string, sanitizer security.TextSanitizer) (*LLMRewriter, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &LLMRewriter{
		generator: &geminiGenerator{client: client, model: modelID},
		sanitizer: sanitizer,
	}, nil
}

type promptDeal struct {
	Source      string   `json:"source"`
	SourceID    string   `json:"source_id"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

// Rewrite はLLMの出力を(source, source_id)で入力に対応付けて返す。
// LLMが返さなかった入力はキーワード分類で補完する。
// 1件も対応付けできない場合はErrMalformedResponseを返す。
func (r *LLMRewriter) Rewrite(ctx context.Context, raws []model.RawDeal) ([]model.EnrichedDeal, error) {
	prompt := buildPrompt(raws)

	text, err := r.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var outputs []model.EnrichedDeal
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &outputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	byKey := make(map[string]model.EnrichedDeal, len(outputs))
	for _, o := range outputs {
		key := o.Source + "\x00" + o.SourceID
		if _, dup := byKey[key]; !dup {
			byKey[key] = o
		}
	}

	merged := make([]model.EnrichedDeal, 0, len(raws))
	matched := 0
	for _, raw := range raws {
		o, ok := byKey[raw.Source+"\x00"+raw.SourceID]
		if !ok {
			merged = append(merged, classifyOne(raw, false))
			continue
		}
		matched++
		merged = append(merged, r.merge(raw, o))
	}

	if matched == 0 {
		return nil, ErrMalformedResponse
	}
	return merged, nil
}

// merge はLLM出力のうちテキストとスコアのみを採用する。価格・URL等は入力値を保持する。
func (r *LLMRewriter) merge(raw model.RawDeal, o model.EnrichedDeal) model.EnrichedDeal {
	out := model.EnrichedDeal{RawDeal: raw, Score: o.Score, IsFeatured: o.IsFeatured}

	if title := clip(r.clean(o.Title), maxTitleRunes); title != "" {
		out.Title = title
	}
	if o.Description != nil {
		if desc := clip(r.clean(*o.Description), maxDescriptionRunes); desc != "" {
			out.Description = &desc
		}
	}

	fallback := classifyOne(raw, false)
	out.Category = fallback.Category
	if o.Category != nil {
		if c, ok := ResolveCategory(*o.Category); ok {
			name := string(c)
			out.Category = &name
		}
	}
	return out
}

func (r *LLMRewriter) clean(s string) string {
	if r.sanitizer == nil {
		return strings.TrimSpace(s)
	}
	return r.sanitizer.Sanitize(s)
}

func buildPrompt(raws []model.RawDeal) string {
	data := make([]promptDeal, 0, len(raws))
	size := 2
	for _, raw := range raws {
		pd := promptDeal{
			Source:      raw.Source,
			SourceID:    raw.SourceID,
			Title:       raw.Title,
			Description: raw.Description,
			Category:    raw.Category,
			Price:       raw.Price,
		}
		b, err := json.Marshal(pd)
		if err != nil {
			continue
		}
		// 上限を超えた分は送らず、キーワード分類で補完される
		if size+len(b)+1 > maxPromptDataBytes && len(data) > 0 {
			break
		}
		size += len(b) + 1
		data = append(data, pd)
	}
	encoded, _ := json.Marshal(data)

	categories := make([]string, 0, len(AllCategories()))
	for _, c := range AllCategories() {
		categories = append(categories, string(c))
	}

	return fmt.Sprintf(`Du är en svensk e-handels- och SEO-expert. Du skriver kort, säljande copy.
Optimera dessa deals. För varje deal:
- Lockande svensk titel (högst %d tecken)
- Kort CTA i description (högst %d tecken)
- Kategori: %s (eller null)
- Score 0..100
- Markera exakt EN is_featured=true
Returnera en JSON-array och behåll source och source_id oförändrade.
Data: %s`, maxTitleRunes, maxDescriptionRunes, strings.Join(categories, ", "), encoded)
}

// stripCodeFence はLLMが付与することのあるMarkdownのコードフェンスを除去する。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

package rewrite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/security"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func newTestLLMRewriter(gen textGenerator) *LLMRewriter {
	return &LLMRewriter{generator: gen, sanitizer: security.NewTextSanitizer()}
}

func testRawDeals() []model.RawDeal {
	price := 12999.0
	currency := "SEK"
	image := "https://cdn.example.com/mac.png"
	return []model.RawDeal{
		{
			Source: model.SourceSample, SourceID: "mac", Title: "MacBook Air M3 på rea",
			Price: &price, Currency: &currency, LinkURL: "https://example.com/mac", ImageURL: &image,
		},
		{Source: model.SourceSample, SourceID: "fryer", Title: "Philips Airfryer XXL", LinkURL: "https://example.com/fryer"},
	}
}

func TestLLMRewriter_Rewrite_MergesByIdentity(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n" + `[
		{"source":"sample","source_id":"fryer","title":"Krispigt utan olja","score":40,"is_featured":false},
		{"source":"sample","source_id":"mac","title":"<b>Superpris</b> på MacBook","description":"Köp nu","category":"elektronik","score":88,"is featured":true,"link_url":"https://evil.example.com","price":1}
	]` + "\n```"}
	r := newTestLLMRewriter(gen)
	raws := testRawDeals()

	got, err := r.Rewrite(context.Background(), raws)
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	mac := got[0]
	if mac.SourceID != "mac" {
		t.Fatalf("output order must follow input, got %q first", mac.SourceID)
	}
	if mac.Title != "Superpris på MacBook" {
		t.Errorf("Title = %q, want sanitized LLM title", mac.Title)
	}
	if mac.Description == nil || *mac.Description != "Köp nu" {
		t.Errorf("Description = %v, want LLM description", mac.Description)
	}
	if mac.Category == nil || *mac.Category != "Elektronik" {
		t.Errorf("Category = %v, want canonical Elektronik", mac.Category)
	}
	if mac.Score == nil || *mac.Score != 88 {
		t.Errorf("Score = %v, want 88", mac.Score)
	}
	if !mac.IsFeatured {
		t.Error("IsFeatured should be read from the \"is featured\" alias")
	}
	if mac.LinkURL != "https://example.com/mac" {
		t.Errorf("LinkURL = %q, LLM must not override links", mac.LinkURL)
	}
	if mac.Price == nil || *mac.Price != 12999 {
		t.Errorf("Price = %v, LLM must not override prices", mac.Price)
	}
	if mac.ImageURL == nil || *mac.ImageURL != "https://cdn.example.com/mac.png" {
		t.Errorf("ImageURL = %v", mac.ImageURL)
	}

	fryer := got[1]
	if fryer.Title != "Krispigt utan olja" || fryer.IsFeatured {
		t.Errorf("unexpected fryer: %+v", fryer)
	}
	if fryer.Category == nil || *fryer.Category != "Hem" {
		t.Errorf("Category = %v, want keyword fallback Hem", fryer.Category)
	}

	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], `"source_id":"mac"`) {
		t.Errorf("prompt should carry the input data: %v", gen.prompts)
	}
}

func TestLLMRewriter_Rewrite_PartialMatchUsesKeywordFallback(t *testing.T) {
	gen := &fakeGenerator{response: `[{"source":"sample","source_id":"mac","title":"Ny titel","score":70,"is_featured":true}]`}
	got, err := newTestLLMRewriter(gen).Rewrite(context.Background(), testRawDeals())
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	fryer := got[1]
	if fryer.Title != "Philips Airfryer XXL" {
		t.Errorf("unmatched deal should keep its title, got %q", fryer.Title)
	}
	if fryer.Score == nil || *fryer.Score != DefaultScore {
		t.Errorf("Score = %v, want default", fryer.Score)
	}
	if fryer.IsFeatured {
		t.Error("unmatched deal must not be featured")
	}
}

func TestLLMRewriter_Rewrite_UnknownCategoryFallsBack(t *testing.T) {
	gen := &fakeGenerator{response: `[{"source":"sample","source_id":"fryer","title":"X","category":"Köksmaskiner","score":10}]`}
	got, err := newTestLLMRewriter(gen).Rewrite(context.Background(), testRawDeals()[1:])
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if got[0].Category == nil || *got[0].Category != "Hem" {
		t.Errorf("Category = %v, want keyword fallback Hem", got[0].Category)
	}
}

func TestLLMRewriter_Rewrite_ClipsText(t *testing.T) {
	long := strings.Repeat("å", 200)
	gen := &fakeGenerator{response: `[{"source":"sample","source_id":"mac","title":"` + long + `","description":"` + long + `","score":1}]`}
	got, err := newTestLLMRewriter(gen).Rewrite(context.Background(), testRawDeals()[:1])
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if n := utf8.RuneCountInString(got[0].Title); n != maxTitleRunes {
		t.Errorf("title runes = %d, want %d", n, maxTitleRunes)
	}
	if n := utf8.RuneCountInString(*got[0].Description); n != maxDescriptionRunes {
		t.Errorf("description runes = %d, want %d", n, maxDescriptionRunes)
	}
}

func TestLLMRewriter_Rewrite_EmptyTitleKeepsOriginal(t *testing.T) {
	gen := &fakeGenerator{response: `[{"source":"sample","source_id":"mac","title":"  ","score":1}]`}
	got, err := newTestLLMRewriter(gen).Rewrite(context.Background(), testRawDeals()[:1])
	if err != nil {
		t.Fatalf("Rewrite returned error: %v", err)
	}
	if got[0].Title != "MacBook Air M3 på rea" {
		t.Errorf("Title = %q, want original", got[0].Title)
	}
}

func TestLLMRewriter_Rewrite_Errors(t *testing.T) {
	genErr := errors.New("quota exceeded")
	tests := []struct {
		name      string
		gen       *fakeGenerator
		malformed bool
	}{
		{"生成エラー", &fakeGenerator{err: genErr}, false},
		{"JSONではない", &fakeGenerator{response: "Här är dina deals!"}, true},
		{"オブジェクト", &fakeGenerator{response: `{"deals":[]}`}, true},
		{"対応するディールなし", &fakeGenerator{response: `[{"source":"other","source_id":"x","title":"t"}]`}, true},
		{"空配列", &fakeGenerator{response: `[]`}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestLLMRewriter(tt.gen).Rewrite(context.Background(), testRawDeals())
			if err == nil {
				t.Fatalf("expected error, got %+v", got)
			}
			if errors.Is(err, ErrMalformedResponse) != tt.malformed {
				t.Errorf("errors.Is(err, ErrMalformedResponse) = %v, want %v (err=%v)", !tt.malformed, tt.malformed, err)
			}
			if !tt.malformed && !errors.Is(err, genErr) {
				t.Errorf("generator error should be propagated, got %v", err)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[]", "[]"},
		{"```json\n[1]\n```", "[1]"},
		{"```\n[2]\n```", "[2]"},
		{"  [3]  ", "[3]"},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildPrompt_CapsData(t *testing.T) {
	raws := make([]model.RawDeal, 0, 200)
	for i := 0; i < 200; i++ {
		raws = append(raws, model.RawDeal{
			Source:   model.SourceSample,
			SourceID: strings.Repeat("x", 10) + string(rune('a'+i%26)),
			Title:    strings.Repeat("Titel ", 20),
		})
	}
	prompt := buildPrompt(raws)
	idx := strings.Index(prompt, "Data: ")
	if idx < 0 {
		t.Fatal("prompt has no data section")
	}
	if data := prompt[idx+len("Data: "):]; len(data) > maxPromptDataBytes {
		t.Errorf("data section = %d bytes, want <= %d", len(data), maxPromptDataBytes)
	}
	for _, c := range AllCategories() {
		if !strings.Contains(prompt, string(c)) {
			t.Errorf("prompt should list category %q", c)
		}
	}
}

func TestNewGeminiRewriter_EmptyKey(t *testing.T) {
	r, err := NewGeminiRewriter(context.Background(), "", "gemini-2.5-flash", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil rewriter without api key, got %+v", r)
	}
}

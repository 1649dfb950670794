package rewrite

import (
	"strings"
	"unicode"

	"github.com/hitoshi/lootsy/internal/model"
)

// DefaultScore はキーワード分類時に付与するスコア。
const DefaultScore = 50.0

// Category はサイトで扱うディールのカテゴリ。
type Category string

const (
	Elektronik Category = "Elektronik"
	Mode       Category = "Mode"
	Sport      Category = "Sport"
	Hem        Category = "Hem"
	Skonhet    Category = "Skönhet"
	Resor      Category = "Resor"
)

// AllCategories は全カテゴリを表示順で返す。
func AllCategories() []Category {
	return []Category{Elektronik, Mode, Sport, Hem, Skonhet, Resor}
}

// ResolveCategory は大文字小文字を無視してカテゴリ名を正規の表記に変換する。
func ResolveCategory(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range AllCategories() {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

// categoryKeywords は先頭のカテゴリから順に照合される。
// 空白を含まないキーワードは単語の部分文字列として照合する（複合語対策）。
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{Elektronik, []string{
		"elektronik", "macbook", "laptop", "dator", "iphone", "ipad", "airpods", "hörlur",
		"headset", "telefon", "mobil", "surfplatta", "kamera", "playstation", "xbox",
		"nintendo", "skärm", "högtalare", "laddare", "smartwatch", "samsung",
	}},
	{Mode, []string{
		"mode", "kläder", "klänning", "jacka", "jeans", "tröja", "sneakers", "nike",
		"air max", "väska", "smycke", "accessoar", "byxor", "skjorta",
	}},
	{Sport, []string{
		"sport", "träning", "löpar", "ultraboost", "adidas", "gym", "cykel", "fotboll",
		"yoga", "fitness", "skidor", "golf", "vandring",
	}},
	{Hem, []string{
		"airfryer", "kök", "möbel", "soffa", "lampa", "säng", "dammsugare", "kaffe",
		"stekpanna", "inredning", "trädgård", "hemmet", "textil",
	}},
	{Skonhet, []string{
		"skönhet", "hudvård", "smink", "parfym", "schampo", "hårvård", "serum",
		"mascara", "läppstift", "ansiktskräm", "doft",
	}},
	{Resor, []string{
		"resa", "resor", "flyg", "hotell", "semester", "weekend", "kryssning",
		"charter", "hyrbil", "spa-paket",
	}},
}

// Classify はタイトルと説明から最初に一致したカテゴリを返す。
// 一致しない場合はfalseを返す。
func Classify(title, description string) (Category, bool) {
	text := strings.ToLower(title + " " + description)
	tokens := tokenize(text)

	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(text, kw) {
					return entry.category, true
				}
				continue
			}
			for _, tok := range tokens {
				if strings.Contains(tok, kw) {
					return entry.category, true
				}
			}
		}
	}
	return "", false
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(s) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// KeywordClassifier はLLMを使わない決定的なリライタ。
// カテゴリをキーワード表から決定し、スコアは既定値、先頭のディールをおすすめにする。
type KeywordClassifier struct{}

// Enrich はRawDealをキーワード分類でEnrichedDealへ変換する。失敗しない。
func (KeywordClassifier) Enrich(raws []model.RawDeal) []model.EnrichedDeal {
	out := make([]model.EnrichedDeal, 0, len(raws))
	for i, raw := range raws {
		out = append(out, classifyOne(raw, i == 0))
	}
	return out
}

func classifyOne(raw model.RawDeal, featured bool) model.EnrichedDeal {
	score := DefaultScore
	enriched := model.EnrichedDeal{RawDeal: raw, Score: &score, IsFeatured: featured}

	enriched.Category = nil
	if raw.Category != nil {
		if c, ok := ResolveCategory(*raw.Category); ok {
			name := string(c)
			enriched.Category = &name
			return enriched
		}
	}

	description := ""
	if raw.Description != nil {
		description = *raw.Description
	}
	if c, ok := Classify(raw.Title, description); ok {
		name := string(c)
		enriched.Category = &name
	}
	return enriched
}

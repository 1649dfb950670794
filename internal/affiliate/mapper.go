package affiliate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/security"
)

// DefaultTitle はタイトルが取得できない場合に使用するプレースホルダ。
const DefaultTitle = "Erbjudande"

// DefaultCurrency は通貨が取得できない場合の既定値。
const DefaultCurrency = "SEK"

// PlaceholderLink は遷移先URLが取得できない場合の安全なプレースホルダ。
const PlaceholderLink = "#"

// 保存先カラムの長さ上限（文字数）。deals テーブルの VARCHAR 定義と一致させる。
const (
	MaxSourceIDRunes = 256
	MaxTitleRunes    = 512
	MaxCategoryRunes = 64
)

// hashedSourceIDPrefix は長すぎる識別子をハッシュ化した値の接頭辞。
const hashedSourceIDPrefix = "sha256:"

// 各フィールドのフォールバックキー。先頭から順に探索し、ドット区切りはネストしたオブジェクトを辿る。
var (
	sourceIDKeys    = []string{"id", "offer_id", "offerId", "campaignId", "campaign_id", "programId", "program_id", "productId", "product_id"}
	titleKeys       = []string{"title", "name", "description", "productName", "product_name"}
	descriptionKeys = []string{"description", "summary", "shortDescription", "short_description", "text"}
	categoryKeys    = []string{"category", "vertical", "categoryName", "category_name", "category.name"}
	priceKeys       = []string{"price", "salePrice", "sale_price", "price.amount"}
	currencyKeys    = []string{"currency", "currencyCode", "currency_code", "price.currency"}
	linkKeys        = []string{"tracking_url", "trackingUrl", "trackingLink", "tracking_link", "deeplink", "url", "link"}
	imageKeys       = []string{"image", "imageUrl", "image_url", "logo", "logoUrl", "logo_url", "program.logo"}
)

// Mapper はベンダーアイテムをRawDealへ変換する。ネットワークや副作用を持たない。
type Mapper struct {
	source    string
	sanitizer security.TextSanitizer
	newID     func() string
}

// NewMapper は指定した取得元タグでMapperを生成する。
func NewMapper(source string, sanitizer security.TextSanitizer) *Mapper {
	return &Mapper{
		source:    source,
		sanitizer: sanitizer,
		newID:     uuid.NewString,
	}
}

// Map はベンダーアイテムを1件のRawDealへ変換する。
// 識別子がない場合はランダムなIDを割り当てるため、その場合は同期をまたいで冪等にならない。
func (m *Mapper) Map(item VendorItem) model.RawDeal {
	deal := model.RawDeal{
		Source:   m.source,
		SourceID: stableSourceID(lookupString(item, sourceIDKeys...)),
		Title:    clipRunes(m.lookupText(item, titleKeys...), MaxTitleRunes),
		LinkURL:  lookupString(item, linkKeys...),
	}

	if deal.SourceID == "" {
		deal.SourceID = m.newID()
	}
	if deal.Title == "" {
		deal.Title = DefaultTitle
	}
	if deal.LinkURL == "" {
		deal.LinkURL = PlaceholderLink
	}

	if v := m.lookupText(item, descriptionKeys...); v != "" {
		deal.Description = &v
	}
	if v := clipRunes(m.lookupText(item, categoryKeys...), MaxCategoryRunes); v != "" {
		deal.Category = &v
	}
	if v, ok := lookupNumber(item, priceKeys...); ok {
		deal.Price = &v
	}

	currency := lookupString(item, currencyKeys...)
	if currency == "" {
		currency = DefaultCurrency
	}
	deal.Currency = &currency

	if v := lookupString(item, imageKeys...); v != "" {
		deal.ImageURL = &v
	}

	return deal
}

// MapAll は全アイテムを変換する。
func (m *Mapper) MapAll(items []VendorItem) []model.RawDeal {
	deals := make([]model.RawDeal, 0, len(items))
	for _, item := range items {
		deals = append(deals, m.Map(item))
	}
	return deals
}

func (m *Mapper) clean(s string) string {
	if m.sanitizer == nil {
		return strings.TrimSpace(s)
	}
	return m.sanitizer.Sanitize(s)
}

// lookupText は候補キーを順に探索し、マークアップ除去後も空でない最初の値を返す。
func (m *Mapper) lookupText(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := m.clean(stringify(lookupPath(item, k))); s != "" {
			return s
		}
	}
	return ""
}

// stableSourceID は上限を超える識別子をハッシュ値に置き換える。
// 同じ入力は常に同じ値になるため、同期をまたいだ冪等性は保たれる。
func stableSourceID(id string) string {
	if utf8.RuneCountInString(id) <= MaxSourceIDRunes {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return hashedSourceIDPrefix + hex.EncodeToString(sum[:])
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// lookupPath はドット区切りのキーでネストしたオブジェクトを辿る。
// 完全一致するキーが存在する場合はそちらを優先する。
func lookupPath(item map[string]any, path string) any {
	if v, ok := item[path]; ok {
		return v
	}
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return nil
	}
	var cur any = item
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// lookupString は候補キーのうち最初に空でない文字列表現を持つ値を返す。
// 数値は指数表記を使わずに文字列化する。
func lookupString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(lookupPath(item, k)); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// lookupNumber は候補キーのうち最初に有限の数値を持つ値を返す。
// 数値として表現されていない値（文字列など）は受け付けない。
func lookupNumber(item map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		var f float64
		switch t := lookupPath(item, k).(type) {
		case json.Number:
			parsed, err := t.Float64()
			if err != nil {
				continue
			}
			f = parsed
		case float64:
			f = t
		case int:
			f = float64(t)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		return f, true
	}
	return 0, false
}

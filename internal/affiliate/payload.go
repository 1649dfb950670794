package affiliate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

// VendorItem はベンダーAPIから受け取った1件分の任意形状のアイテム。
type VendorItem map[string]any

// ShapeKind はベンダーレスポンスの形状を表す。
type ShapeKind int

const (
	// ShapeUnknown は認識できない形状。アイテムは空として扱う。
	ShapeUnknown ShapeKind = iota
	// ShapeContainer はオブジェクト内のコンテナキーに配列を持つ形状。
	ShapeContainer
	// ShapeArray はトップレベルが配列の形状。
	ShapeArray
	// ShapeFeed はRSS/Atom形式の商品フィード。
	ShapeFeed
)

// String はログ出力用の形状名を返す。
func (k ShapeKind) String() string {
	switch k {
	case ShapeContainer:
		return "container"
	case ShapeArray:
		return "array"
	case ShapeFeed:
		return "feed"
	default:
		return "unknown"
	}
}

// Payload はデコード済みのベンダーレスポンス。
type Payload struct {
	Kind  ShapeKind
	Key   string // ShapeContainerの場合に一致したコンテナキー
	Items []VendorItem
}

// ContainerKeys はアイテム配列を探索するコンテナキーの優先順リスト。
var ContainerKeys = []string{"results", "data", "offers", "programs", "products", "campaigns", "items"}

// shapeDecoder は1つのレスポンス形状を判定・抽出する戦略。
type shapeDecoder struct {
	kind   ShapeKind
	decode func(body []byte) (Payload, bool)
}

// shapeDecoders は先頭から順に試行される。ベンダー形状の追加はこの表への追加で行う。
var shapeDecoders = []shapeDecoder{
	{kind: ShapeContainer, decode: decodeContainer},
	{kind: ShapeArray, decode: decodeArray},
	{kind: ShapeFeed, decode: decodeFeed},
}

// DecodePayload はレスポンスボディを既知の形状に照合してアイテムを取り出す。
// いずれにも一致しない場合はShapeUnknownを返し、エラーにはしない。
func DecodePayload(body []byte) Payload {
	for _, d := range shapeDecoders {
		if p, ok := d.decode(body); ok {
			p.Kind = d.kind
			return p
		}
	}
	return Payload{Kind: ShapeUnknown}
}

func decodeJSON(body []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func decodeContainer(body []byte) (Payload, bool) {
	v, ok := decodeJSON(body)
	if !ok {
		return Payload{}, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Payload{}, false
	}
	if key, items, ok := findContainer(obj); ok {
		return Payload{Key: key, Items: items}, true
	}
	// {"data": {"offers": [...]}} のように1階層ネストされた形状
	if inner, ok := obj["data"].(map[string]any); ok {
		if key, items, ok := findContainer(inner); ok {
			return Payload{Key: "data." + key, Items: items}, true
		}
	}
	return Payload{}, false
}

func findContainer(obj map[string]any) (string, []VendorItem, bool) {
	for _, key := range ContainerKeys {
		arr, ok := obj[key].([]any)
		if !ok {
			continue
		}
		return key, toItems(arr), true
	}
	return "", nil, false
}

func decodeArray(body []byte) (Payload, bool) {
	v, ok := decodeJSON(body)
	if !ok {
		return Payload{}, false
	}
	arr, ok := v.([]any)
	if !ok {
		return Payload{}, false
	}
	return Payload{Items: toItems(arr)}, true
}

func toItems(arr []any) []VendorItem {
	items := make([]VendorItem, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			items = append(items, VendorItem(m))
		}
	}
	return items
}

func decodeFeed(body []byte) (Payload, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return Payload{}, false
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(trimmed))
	if err != nil {
		return Payload{}, false
	}

	items := make([]VendorItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		items = append(items, feedEntryToItem(entry))
	}
	return Payload{Items: items}, true
}

// feedEntryToItem はフィードエントリをマッパーが解釈できるキー名に変換する。
func feedEntryToItem(entry *gofeed.Item) VendorItem {
	item := VendorItem{
		"title":       entry.Title,
		"description": entry.Description,
		"url":         entry.Link,
	}

	switch {
	case entry.GUID != "":
		item["id"] = entry.GUID
	case entry.Link != "":
		item["id"] = entry.Link
	}

	if entry.Image != nil && entry.Image.URL != "" {
		item["image"] = entry.Image.URL
	} else {
		for _, enc := range entry.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				item["image"] = enc.URL
				break
			}
		}
	}

	if len(entry.Categories) > 0 {
		item["category"] = entry.Categories[0]
	}

	if raw, ok := entry.Custom["price"]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			item["price"] = json.Number(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	if cur, ok := entry.Custom["currency"]; ok {
		item["currency"] = cur
	}

	return item
}

// firstChannelID はチャネル一覧レスポンスから最初のチャネルIDを取り出す。
func firstChannelID(body []byte) string {
	p := DecodePayload(body)
	for _, item := range p.Items {
		if id := lookupString(item, "id", "channelId", "channel_id"); id != "" {
			return id
		}
	}
	return ""
}

package handler

import (
	"bytes"
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/rewrite"
)

//go:embed templates/*.html
var templateFS embed.FS

// staticPages はサイトマップに含める固定ページのパス。
var staticPages = []string{"/", "/about", "/contact", "/privacy"}

var templateFuncs = template.FuncMap{
	"price": formatPrice,
	"text":  text,
}

// pageTemplates はページ名ごとにレイアウトと結合済みのテンプレート。
var pageTemplates = mustParsePages("home.html", "deal.html", "about.html", "contact.html", "privacy.html", "error.html")

func mustParsePages(pages ...string) map[string]*template.Template {
	m := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		m[page] = template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+page))
	}
	return m
}

// pageView はサイトページの描画データ。
type pageView struct {
	Title       string
	Description string
	BaseURL     string
	Path        string
	Year        int

	Featured   *model.Deal
	Deals      []model.Deal
	Deal       *model.Deal
	Query      string
	Category   string
	Categories []string
	Message    string
}

// SiteHandler はサイトページとサイトマップのHTTPハンドラー。
type SiteHandler struct {
	reader  DealReader
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewSiteHandler はSiteHandlerを生成する。
func NewSiteHandler(reader DealReader, baseURL string, logger *slog.Logger) *SiteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteHandler{
		reader:  reader,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Home はおすすめディール（Dagens Superdeal）と検索・カテゴリ絞り込み付きの一覧を表示する。
// GET /?q=xxx&cat=yyy
func (h *SiteHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := h.newView(r, "Lootsy – Dagens bästa deals", "Handplockade erbjudanden och rabatter, uppdaterade varje dag.")
	view.Query = strings.TrimSpace(r.URL.Query().Get("q"))
	view.Category = strings.TrimSpace(r.URL.Query().Get("cat"))
	for _, c := range rewrite.AllCategories() {
		view.Categories = append(view.Categories, string(c))
	}

	deals, err := h.reader.List(ctx, model.DealFilter{Query: view.Query, Category: view.Category})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view.Deals = deals

	if view.Query == "" && view.Category == "" && len(deals) > 0 && deals[0].IsFeatured {
		view.Featured = &deals[0]
		view.Deals = deals[1:]
	}

	h.render(w, http.StatusOK, "home.html", view)
}

// Deal はディール詳細ページを表示する。
// GET /deal/{id}
func (h *SiteHandler) Deal(w http.ResponseWriter, r *http.Request) {
	d, err := h.reader.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	description := text(d.Description)
	if description == "" {
		description = d.Title
	}
	view := h.newView(r, d.Title+" – Lootsy", description)
	view.Deal = d
	h.render(w, http.StatusOK, "deal.html", view)
}

// About は紹介ページを表示する。
func (h *SiteHandler) About(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "about.html", h.newView(r, "Om Lootsy", "Vad Lootsy är och hur vi hittar våra deals."))
}

// Contact は問い合わせページを表示する。
func (h *SiteHandler) Contact(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "contact.html", h.newView(r, "Kontakt – Lootsy", "Kontakta Lootsy."))
}

// Privacy はプライバシーポリシーページを表示する。
func (h *SiteHandler) Privacy(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "privacy.html", h.newView(r, "Integritetspolicy – Lootsy", "Hur Lootsy hanterar data."))
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// Sitemap は固定ページと最新のディール詳細ページを列挙したサイトマップを返す。
// GET /sitemap.xml
func (h *SiteHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	ids, err := h.reader.ListIDs(r.Context())
	if err != nil {
		h.logger.Error("サイトマップ用のディールID取得に失敗しました", slog.String("error", err.Error()))
		http.Error(w, "sitemap unavailable", http.StatusInternalServerError)
		return
	}

	lastMod := h.now().UTC().Format("2006-01-02")
	set := sitemapURLSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range staticPages {
		set.URLs = append(set.URLs, sitemapURL{Loc: h.baseURL + p, LastMod: lastMod})
	}
	for _, id := range ids {
		set.URLs = append(set.URLs, sitemapURL{Loc: h.baseURL + "/deal/" + id, LastMod: lastMod})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		h.logger.Error("サイトマップの生成に失敗しました", slog.String("error", err.Error()))
		http.Error(w, "sitemap unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// NotFound は存在しないページ用の404ページを表示する。
func (h *SiteHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	view := h.newView(r, "Sidan hittades inte – Lootsy", "")
	view.Message = "Sidan du letar efter finns inte."
	h.render(w, http.StatusNotFound, "error.html", view)
}

func (h *SiteHandler) newView(r *http.Request, title, description string) pageView {
	return pageView{
		Title:       title,
		Description: description,
		BaseURL:     h.baseURL,
		Path:        r.URL.Path,
		Year:        h.now().Year(),
	}
}

// renderError はサービスエラーをエラーページとして表示する。
func (h *SiteHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Något gick fel. Försök igen om en stund."

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status = mapAPIErrorToHTTPStatus(apiErr)
		switch apiErr.Code {
		case model.ErrCodeDealNotFound:
			message = "Dealen finns inte längre."
		case model.ErrCodeInvalidFilter:
			message = "Sökningen är för lång."
		}
	} else {
		h.logger.Error("ページの描画に失敗しました",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	view := h.newView(r, "Lootsy", "")
	view.Message = message
	h.render(w, status, "error.html", view)
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画途中で失敗した場合に部分的なHTMLを返さないためバッファを経由する。
func (h *SiteHandler) render(w http.ResponseWriter, status int, page string, view pageView) {
	var buf bytes.Buffer
	if err := pageTemplates[page].ExecuteTemplate(&buf, "layout.html", view); err != nil {
		h.logger.Error("テンプレートの描画に失敗しました",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatPrice は価格を「12 999 kr」形式に整形する。価格が無い場合は空文字を返す。
func formatPrice(price *float64, currency string) string {
	if price == nil {
		return ""
	}

	cents := int64(math.Round(*price * 100))
	whole, frac := cents/100, cents%100

	digits := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(c)
	}

	amount := grouped.String()
	if frac != 0 {
		amount += fmt.Sprintf(",%02d", frac)
	}

	if currency == "" || currency == "SEK" {
		return amount + " kr"
	}
	return amount + " " + currency
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/lootsy/internal/middleware"
	"github.com/hitoshi/lootsy/internal/model"
)

func TestDealHandler_ListPublic_ReturnsArray(t *testing.T) {
	reader := &mockDealReader{listFn: func(context.Context, model.DealFilter) ([]model.Deal, error) {
		return testDeals(), nil
	}}
	h := NewDealHandler(reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/public/deals?q=air&cat=Elektronik", nil)
	w := httptest.NewRecorder()
	h.ListPublic(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if reader.lastFilter.Query != "air" || reader.lastFilter.Category != "Elektronik" {
		t.Errorf("filter = %+v, want q=air cat=Elektronik", reader.lastFilter)
	}

	var body []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("response must be a JSON array: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2", len(body))
	}
	if body[0]["is_featured"] != true || body[0]["link_url"] != "https://example.com/mac" {
		t.Errorf("unexpected first deal: %v", body[0])
	}
	if body[1]["price"] != nil {
		t.Errorf("price should be null, got %v", body[1]["price"])
	}
}

func TestDealHandler_ListPublic_EmptyIsArray(t *testing.T) {
	reader := &mockDealReader{listFn: func(context.Context, model.DealFilter) ([]model.Deal, error) {
		return nil, nil
	}}
	w := httptest.NewRecorder()
	NewDealHandler(reader, nil).ListPublic(w, httptest.NewRequest(http.MethodGet, "/api/public/deals", nil))

	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestDealHandler_ListPublic_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"検索語が長すぎる", model.NewInvalidFilterError("query too long"), http.StatusBadRequest, model.ErrCodeInvalidFilter},
		{"DBエラー", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockDealReader{listFn: func(context.Context, model.DealFilter) ([]model.Deal, error) {
				return nil, tt.err
			}}
			w := httptest.NewRecorder()
			NewDealHandler(reader, nil).ListPublic(w, httptest.NewRequest(http.MethodGet, "/api/public/deals", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.OK || body.Code != tt.wantCode {
				t.Errorf("body = %+v, want code %s", body, tt.wantCode)
			}
		})
	}
}

func TestDealHandler_Redirect(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		resolveErr   error
		wantStatus   int
		wantLocation string
		wantCode     string
	}{
		{
			name:         "遷移先へ302",
			target:       "/api/redirect?id=11111111-1111-1111-1111-111111111111",
			wantStatus:   http.StatusFound,
			wantLocation: "https://example.com/mac",
		},
		{
			name:       "ID未指定は400",
			target:     "/api/redirect",
			resolveErr: model.NewMissingDealIDError(),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeMissingDealID,
		},
		{
			name:       "未知のIDは404",
			target:     "/api/redirect?id=unknown",
			resolveErr: model.NewDealNotFoundError("unknown"),
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeDealNotFound,
		},
		{
			name:       "プレースホルダーリンクは404",
			target:     "/api/redirect?id=placeholder",
			resolveErr: model.NewLinkUnavailableError("placeholder"),
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeLinkUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockClickResolver{resolveFn: func(context.Context, string, string, string) (string, error) {
				if tt.resolveErr != nil {
					return "", tt.resolveErr
				}
				return tt.wantLocation, nil
			}}
			h := NewDealHandler(&mockDealReader{}, resolver)

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			req.Header.Set("User-Agent", "lootsy-test")
			w := httptest.NewRecorder()
			h.Redirect(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantLocation != "" {
				if loc := w.Header().Get("Location"); loc != tt.wantLocation {
					t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
				}
				if resolver.lastIP != "203.0.113.7" || resolver.lastUserAgent != "lootsy-test" {
					t.Errorf("ip = %q, ua = %q", resolver.lastIP, resolver.lastUserAgent)
				}
				return
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

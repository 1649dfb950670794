package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEnrichedDeal_UnmarshalJSON_FeaturedAliases(t *testing.T) {
	tests := []struct {
		name string
		json string
		want bool
	}{
		{"is_featured", `{"source_id":"1","is_featured":true}`, true},
		{"スペース区切り", `{"source_id":"1","is featured":true}`, true},
		{"camelCase", `{"source_id":"1","isFeatured":"yes"}`, true},
		{"先頭の別名を優先", `{"source_id":"1","is_featured":false,"isFeatured":true}`, false},
		{"数値の1", `{"source_id":"1","is_featured":1}`, true},
		{"スウェーデン語のja", `{"source_id":"1","is_featured":"Ja"}`, true},
		{"未指定", `{"source_id":"1"}`, false},
		{"null", `{"source_id":"1","is_featured":null}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d EnrichedDeal
			if err := json.Unmarshal([]byte(tt.json), &d); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if d.IsFeatured != tt.want {
				t.Errorf("IsFeatured = %v, want %v", d.IsFeatured, tt.want)
			}
			if d.SourceID != "1" {
				t.Errorf("SourceID = %q, want 1", d.SourceID)
			}
		})
	}
}

func TestEnrichedDeal_UnmarshalJSON_Score(t *testing.T) {
	tests := []struct {
		name string
		json string
		want *float64
	}{
		{"数値", `{"score":72.5}`, ptr(72.5)},
		{"文字列は無視", `{"score":"72"}`, nil},
		{"null", `{"score":null}`, nil},
		{"未指定", `{}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d EnrichedDeal
			if err := json.Unmarshal([]byte(tt.json), &d); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			switch {
			case tt.want == nil && d.Score != nil:
				t.Errorf("Score = %v, want nil", *d.Score)
			case tt.want != nil && (d.Score == nil || *d.Score != *tt.want):
				t.Errorf("Score = %v, want %v", d.Score, *tt.want)
			}
		})
	}
}

func TestEnrichedDeal_UnmarshalJSON_ResetsPreviousValues(t *testing.T) {
	d := EnrichedDeal{Score: ptr(10), IsFeatured: true}
	if err := json.Unmarshal([]byte(`{"source_id":"2"}`), &d); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if d.Score != nil || d.IsFeatured {
		t.Errorf("previous values should be cleared: %+v", d)
	}
}

func TestEnrichedDeal_MarshalJSON_CanonicalKeys(t *testing.T) {
	d := EnrichedDeal{
		RawDeal:    RawDeal{Source: SourceSample, SourceID: "1", Title: "Kök & bad", LinkURL: "https://example.com/?a=1&b=2"},
		Score:      ptr(80),
		IsFeatured: true,
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"is_featured":true`, `"score":80`, `"title":"Kök & bad"`, `b=2`} {
		if !strings.Contains(s, want) {
			t.Errorf("output %s should contain %s", s, want)
		}
	}

	var back EnrichedDeal
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.IsFeatured || back.Score == nil || *back.Score != 80 {
		t.Errorf("round trip lost fields: %+v", back)
	}
}

func TestAPIError_Error(t *testing.T) {
	err := error(NewDealNotFoundError("abc"))
	if got := err.Error(); got != "[DEAL_NOT_FOUND] deal not found: abc" {
		t.Errorf("Error() = %q", got)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Category != "deal" {
		t.Errorf("errors.As failed: %+v", apiErr)
	}
}

func ptr(f float64) *float64 { return &f }

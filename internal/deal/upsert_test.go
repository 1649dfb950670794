package deal

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/lootsy/internal/model"
)

func validDeal(sourceID string) model.Deal {
	return model.Deal{
		Source:   model.SourceSample,
		SourceID: sourceID,
		Title:    "Titel",
		Currency: "SEK",
		LinkURL:  "https://example.com/" + sourceID,
		ImageURL: PlaceholderImage,
		Score:    50,
	}
}

func TestUpsertService_Upsert_WritesBatch(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDealRepo{}
	svc := NewUpsertService(repo, newTestLogger(&buf))

	n, err := svc.Upsert(context.Background(), []model.Deal{validDeal("a"), validDeal("b")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || repo.upsertCalls != 1 {
		t.Errorf("count = %d, calls = %d; want 2, 1", n, repo.upsertCalls)
	}
}

func TestUpsertService_Upsert_RejectsWholeBatch(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDealRepo{}
	svc := NewUpsertService(repo, newTestLogger(&buf))

	bad := validDeal("bad")
	bad.ImageURL = "not-a-url"

	n, err := svc.Upsert(context.Background(), []model.Deal{validDeal("a"), bad, validDeal("c")})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	if repo.upsertCalls != 0 {
		t.Error("repository must not be called when any record is invalid")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"source_id":"bad"`)) {
		t.Errorf("log should identify the failing record: %s", buf.String())
	}
}

func TestUpsertService_Upsert_NormalizedDealsAlwaysPass(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDealRepo{}
	svc := NewUpsertService(repo, newTestLogger(&buf))

	raw := []model.EnrichedDeal{
		{RawDeal: model.RawDeal{Source: model.SourceAdrevenue, SourceID: "7", LinkURL: "not a url"}},
		{RawDeal: model.RawDeal{Source: model.SourceSample, SourceID: "x", Currency: strPtr("eur"), Price: floatPtr(-1)}, Score: floatPtr(500)},
	}

	if _, err := svc.Upsert(context.Background(), EnsureOneFeatured(NormalizeAll(raw))); err != nil {
		t.Errorf("normalized batch failed validation: %v", err)
	}
}

func TestUpsertService_Upsert_RepositoryError(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	repo := &mockDealRepo{upsertFn: func(context.Context, []model.Deal) (int, error) { return 0, dbErr }}

	_, err := NewUpsertService(repo, newTestLogger(&buf)).Upsert(context.Background(), []model.Deal{validDeal("a")})
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped repository error", err)
	}
}

func TestUpsertService_Upsert_Empty(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDealRepo{}
	n, err := NewUpsertService(repo, newTestLogger(&buf)).Upsert(context.Background(), nil)
	if err != nil || n != 0 || repo.upsertCalls != 0 {
		t.Errorf("Upsert(nil) = %d, %v; calls = %d", n, err, repo.upsertCalls)
	}
}

package handler

import (
	"context"

	"github.com/hitoshi/lootsy/internal/affiliate"
	"github.com/hitoshi/lootsy/internal/ingest"
	"github.com/hitoshi/lootsy/internal/model"
)

type mockDealReader struct {
	listFn     func(ctx context.Context, filter model.DealFilter) ([]model.Deal, error)
	getFn      func(ctx context.Context, id string) (*model.Deal, error)
	featuredFn func(ctx context.Context) (*model.Deal, error)
	listIDsFn  func(ctx context.Context) ([]string, error)

	lastFilter model.DealFilter
}

func (m *mockDealReader) List(ctx context.Context, filter model.DealFilter) ([]model.Deal, error) {
	m.lastFilter = filter
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []model.Deal{}, nil
}

func (m *mockDealReader) Get(ctx context.Context, id string) (*model.Deal, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewDealNotFoundError(id)
}

func (m *mockDealReader) Featured(ctx context.Context) (*model.Deal, error) {
	if m.featuredFn != nil {
		return m.featuredFn(ctx)
	}
	return nil, nil
}

func (m *mockDealReader) ListIDs(ctx context.Context) ([]string, error) {
	if m.listIDsFn != nil {
		return m.listIDsFn(ctx)
	}
	return []string{}, nil
}

type mockClickResolver struct {
	resolveFn func(ctx context.Context, id, ip, userAgent string) (string, error)

	lastIP        string
	lastUserAgent string
}

func (m *mockClickResolver) Resolve(ctx context.Context, id, ip, userAgent string) (string, error) {
	m.lastIP = ip
	m.lastUserAgent = userAgent
	return m.resolveFn(ctx, id, ip, userAgent)
}

type mockSyncRunner struct {
	runFn func(ctx context.Context) (ingest.Result, error)
	calls int
}

func (m *mockSyncRunner) Run(ctx context.Context) (ingest.Result, error) {
	m.calls++
	return m.runFn(ctx)
}

type mockDealFetcher struct {
	deals  []model.RawDeal
	result affiliate.ProbeResult
	calls  int
}

func (m *mockDealFetcher) FetchDeals(context.Context) ([]model.RawDeal, affiliate.ProbeResult) {
	m.calls++
	return m.deals, m.result
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error {
	return m.err
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func testDeals() []model.Deal {
	return []model.Deal{
		{
			ID: "11111111-1111-1111-1111-111111111111", Source: model.SourceSample, SourceID: "mac",
			Title: "MacBook Air M3 på rea", Description: strPtr("Begränsat antal"), Category: strPtr("Elektronik"),
			Price: floatPtr(12999), Currency: "SEK", LinkURL: "https://example.com/mac",
			ImageURL: "https://images.example.com/mac.png", Score: 92, IsFeatured: true,
		},
		{
			ID: "22222222-2222-2222-2222-222222222222", Source: model.SourceSample, SourceID: "nike",
			Title: "20% rabatt på Nike Air Max", Category: strPtr("Mode"),
			Currency: "SEK", LinkURL: "https://example.com/nike",
			ImageURL: "https://images.example.com/nike.png", Score: 70,
		},
	}
}

package deal

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/lootsy/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }

// mockDealRepo はテスト用のDealRepositoryモック。
type mockDealRepo struct {
	upsertFn   func(ctx context.Context, deals []model.Deal) (int, error)
	listFn     func(ctx context.Context, filter model.DealFilter) ([]model.Deal, error)
	findByIDFn func(ctx context.Context, id string) (*model.Deal, error)
	listIDsFn  func(ctx context.Context, limit int) ([]string, error)

	upsertCalls int
	lastFilter  model.DealFilter
	lastLimit   int
}

func (m *mockDealRepo) UpsertAll(ctx context.Context, deals []model.Deal) (int, error) {
	m.upsertCalls++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, deals)
	}
	return len(deals), nil
}

func (m *mockDealRepo) List(ctx context.Context, filter model.DealFilter) ([]model.Deal, error) {
	m.lastFilter = filter
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []model.Deal{}, nil
}

func (m *mockDealRepo) FindByID(ctx context.Context, id string) (*model.Deal, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockDealRepo) ListIDs(ctx context.Context, limit int) ([]string, error) {
	m.lastLimit = limit
	if m.listIDsFn != nil {
		return m.listIDsFn(ctx, limit)
	}
	return []string{}, nil
}

// mockClickRepo はテスト用のClickRepositoryモック。
type mockClickRepo struct {
	err    error
	clicks []*model.Click
}

func (m *mockClickRepo) Create(_ context.Context, click *model.Click) error {
	if m.err != nil {
		return m.err
	}
	m.clicks = append(m.clicks, click)
	return nil
}

type clickCounter struct {
	clicks int
}

func (c *clickCounter) RecordProbeAttempt(string, int, bool, time.Duration) {}
func (c *clickCounter) RecordSyncRun(string, error)                         {}
func (c *clickCounter) RecordDealsUpserted(int)                             {}
func (c *clickCounter) RecordRewriteFallback(string)                        {}
func (c *clickCounter) RecordClick()                                        { c.clicks++ }

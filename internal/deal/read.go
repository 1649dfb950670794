package deal

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/repository"
)

const (
	// DefaultListLimit は公開一覧の既定件数。
	DefaultListLimit = 60
	// SitemapLimit はサイトマップに含めるディール数の上限。
	SitemapLimit = 200

	maxQueryRunes = 200
)

// ReadService は公開向けの読み取り専用サービス。
type ReadService struct {
	dealRepo repository.DealRepository
	limit    int
}

// NewReadService はReadServiceを生成する。limitが0以下の場合はDefaultListLimitを使う。
func NewReadService(dealRepo repository.DealRepository, limit int) *ReadService {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &ReadService{dealRepo: dealRepo, limit: limit}
}

// List は検索語とカテゴリで絞り込んだディールを、おすすめ優先・スコア降順で返す。
func (s *ReadService) List(ctx context.Context, filter model.DealFilter) ([]model.Deal, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Category = strings.TrimSpace(filter.Category)
	if utf8.RuneCountInString(filter.Query) > maxQueryRunes {
		return nil, model.NewInvalidFilterError("query too long")
	}
	if filter.Limit <= 0 || filter.Limit > s.limit {
		filter.Limit = s.limit
	}
	return s.dealRepo.List(ctx, filter)
}

// Featured は現在のおすすめディールを返す。ディールが無い場合はnilを返す。
func (s *ReadService) Featured(ctx context.Context) (*model.Deal, error) {
	deals, err := s.dealRepo.List(ctx, model.DealFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(deals) == 0 {
		return nil, nil
	}
	return &deals[0], nil
}

// Get は指定IDのディールを返す。見つからない場合はDEAL_NOT_FOUNDのAPIErrorを返す。
func (s *ReadService) Get(ctx context.Context, id string) (*model.Deal, error) {
	d, err := s.dealRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, model.NewDealNotFoundError(id)
	}
	return d, nil
}

// ListIDs はサイトマップ用にディールIDを返す。
func (s *ReadService) ListIDs(ctx context.Context) ([]string, error) {
	return s.dealRepo.ListIDs(ctx, SitemapLimit)
}

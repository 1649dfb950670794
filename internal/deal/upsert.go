package deal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/repository"
	"github.com/hitoshi/lootsy/internal/validator"
)

// UpsertService はディールの検証と(source, source_id)をキーとしたUPSERTを提供する。
type UpsertService struct {
	dealRepo  repository.DealRepository
	validator *validator.Validator
	logger    *slog.Logger
}

// NewUpsertService はUpsertServiceの新しいインスタンスを生成する。
func NewUpsertService(dealRepo repository.DealRepository, logger *slog.Logger) *UpsertService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpsertService{
		dealRepo:  dealRepo,
		validator: validator.New(),
		logger:    logger,
	}
}

// Upsert はバッチ全件を検証した上でUPSERTする。
// 1件でも検証に失敗した場合は何も書き込まず、VALIDATION_FAILEDのAPIErrorを返す。
// 戻り値は書き込んだ件数。
func (s *UpsertService) Upsert(ctx context.Context, deals []model.Deal) (int, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	for i, d := range deals {
		if err := s.validator.ValidateStruct(d); err != nil {
			s.logger.Warn("ディールの検証に失敗したため保存を中止しました",
				slog.Int("index", i),
				slog.String("source", d.Source),
				slog.String("source_id", d.SourceID),
				slog.String("error", err.Error()),
			)
			return 0, model.NewValidationFailedError(
				fmt.Sprintf("deal %s/%s: %v", d.Source, d.SourceID, err))
		}
	}

	count, err := s.dealRepo.UpsertAll(ctx, deals)
	if err != nil {
		s.logger.Error("ディールの保存に失敗しました", slog.String("error", err.Error()))
		return 0, fmt.Errorf("ディールの保存に失敗: %w", err)
	}

	s.logger.Info("ディールUPSERT完了", slog.Int("count", count))
	return count, nil
}

package deal

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/lootsy/internal/metrics"
	"github.com/hitoshi/lootsy/internal/model"
	"github.com/hitoshi/lootsy/internal/repository"
)

// Redirector はディールIDを遷移先URLに解決し、クリックを記録する。
type Redirector struct {
	dealRepo  repository.DealRepository
	clickRepo repository.ClickRepository
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewRedirector はRedirectorを生成する。
func NewRedirector(
	dealRepo repository.DealRepository,
	clickRepo repository.ClickRepository,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Redirector {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redirector{
		dealRepo:  dealRepo,
		clickRepo: clickRepo,
		metrics:   recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve はディールの遷移先URLを返す。
// IDが空の場合はMISSING_DEAL_ID、存在しない場合はDEAL_NOT_FOUND、
// リンクがプレースホルダの場合はLINK_UNAVAILABLEのAPIErrorを返す。
// クリックの記録に失敗してもリダイレクトは妨げない。
func (r *Redirector) Resolve(ctx context.Context, id, ip, userAgent string) (string, error) {
	if id == "" {
		return "", model.NewMissingDealIDError()
	}

	d, err := r.dealRepo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", model.NewDealNotFoundError(id)
	}
	if d.LinkURL == "" || d.LinkURL == PlaceholderLink {
		return "", model.NewLinkUnavailableError(id)
	}

	click := &model.Click{
		DealID:    d.ID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: r.now(),
	}
	if err := r.clickRepo.Create(ctx, click); err != nil {
		r.logger.Warn("クリックの記録に失敗しました",
			slog.String("deal_id", d.ID),
			slog.String("error", err.Error()),
		)
	} else {
		r.metrics.RecordClick()
	}

	return d.LinkURL, nil
}

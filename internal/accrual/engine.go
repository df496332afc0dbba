package accrual

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

// ErrRequirementsNotMet возвращается при попытке получить вознаграждение без выполнения условий кампании.
var ErrRequirementsNotMet = errors.New("campaign requirements not met")

// Store описывает хранилище прогресса лояльности, используемое движком.
type Store interface {
	AccrueActiveCampaigns(ctx context.Context, customerID, points int64) ([]model.CampaignProgress, error)
	EnsureProgress(ctx context.Context, customerID, campaignID int64) (*model.CampaignProgress, error)
	MarkFulfilled(ctx context.Context, customerID, campaignID int64) (*model.CampaignProgress, error)
	GetCampaign(ctx context.Context, campaignID int64) (*model.Campaign, error)
	CustomerStats(ctx context.Context, ownerID, customerID int64) (*model.CustomerStats, error)
}

// Engine начисляет баллы и проверяет право покупателя на вознаграждения.
type Engine struct {
	store Store
}

// NewEngine создаёт движок начислений поверх хранилища.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Accrue начисляет баллы за продажу во все активные кампании. При нулевом результате хранилище не вызывается.
func (e *Engine) Accrue(ctx context.Context, customerID int64, amount decimal.Decimal, method model.PaymentMethod) (int64, []model.CampaignProgress, error) {
	points := ComputePoints(amount, method)
	if points <= 0 {
		return 0, nil, nil
	}

	progress, err := e.store.AccrueActiveCampaigns(ctx, customerID, points)
	if err != nil {
		return 0, nil, fmt.Errorf("accrue %d points for customer %d: %w", points, customerID, err)
	}

	return points, progress, nil
}

// RequirementResult содержит результат проверки одного условия.
type RequirementResult struct {
	Requirement model.Requirement
	Met         bool
}

// Eligibility описывает положение покупателя в кампании.
type Eligibility struct {
	Campaign     model.Campaign
	Progress     model.CampaignProgress
	Tier         Tier
	Stats        model.CustomerStats
	Requirements []RequirementResult
	Eligible     bool
}

// Eligibility проверяет условия кампании для покупателя владельца.
// При первом обращении создаётся пустая запись прогресса.
func (e *Engine) Eligibility(ctx context.Context, ownerID, customerID, campaignID int64) (*Eligibility, error) {
	stats, err := e.store.CustomerStats(ctx, ownerID, customerID)
	if err != nil {
		return nil, err
	}

	campaign, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	progress, err := e.store.EnsureProgress(ctx, customerID, campaignID)
	if err != nil {
		return nil, err
	}

	el := &Eligibility{
		Campaign: *campaign,
		Progress: *progress,
		Tier:     TierOf(progress.AccumulatedPoints),
		Stats:    *stats,
		Eligible: true,
	}

	for _, req := range campaign.Requirements {
		met := EvaluateRequirement(*stats, req)
		el.Requirements = append(el.Requirements, RequirementResult{Requirement: req, Met: met})
		if !met {
			el.Eligible = false
		}
	}

	return el, nil
}

// Redeem отмечает получение вознаграждения. Повторный вызов возвращает сохранённый прогресс без ошибки.
func (e *Engine) Redeem(ctx context.Context, ownerID, customerID, campaignID int64) (*model.CampaignProgress, error) {
	el, err := e.Eligibility(ctx, ownerID, customerID, campaignID)
	if err != nil {
		return nil, err
	}

	if el.Progress.MetRequirements && el.Progress.FulfilledAt != nil {
		return &el.Progress, nil
	}

	if !el.Eligible {
		return nil, fmt.Errorf("%w: customer %d campaign %d", ErrRequirementsNotMet, customerID, campaignID)
	}

	return e.store.MarkFulfilled(ctx, customerID, campaignID)
}

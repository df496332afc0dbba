package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/accrual"
	"github.com/mmeshcher/pos-ledger/internal/gamification"
	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/validation"
)

// RequirementInput задаёт условие создаваемой кампании.
type RequirementInput struct {
	Type      string          `json:"type" validate:"oneof=purchase_count amount"`
	Threshold decimal.Decimal `json:"threshold"`
}

// BenefitInput задаёт вознаграждение создаваемой кампании.
type BenefitInput struct {
	Type  string          `json:"type" validate:"oneof=discount product"`
	Value decimal.Decimal `json:"value"`
}

// CampaignInput описывает новую кампанию лояльности.
type CampaignInput struct {
	Name         string             `json:"name" validate:"required,max=200"`
	StartsAt     *time.Time         `json:"starts_at"`
	EndsAt       *time.Time         `json:"ends_at"`
	Requirements []RequirementInput `json:"requirements" validate:"dive"`
	Benefits     []BenefitInput     `json:"benefits" validate:"dive"`
}

// CreateCampaign создаёт активную кампанию.
func (s *Service) CreateCampaign(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, validation.New("name", "is required")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return nil, validation.New("ends_at", "must not be before starts_at")
	}

	c := &model.Campaign{
		Name:     strings.TrimSpace(in.Name),
		StartsAt: in.StartsAt,
		EndsAt:   in.EndsAt,
	}

	for i, r := range in.Requirements {
		t := model.RequirementType(r.Type)
		if err := validation.Amount(fmt.Sprintf("requirements[%d].threshold", i), r.Threshold); err != nil {
			return nil, err
		}
		if t == model.RequirementPurchaseCount && !r.Threshold.Equal(r.Threshold.Floor()) {
			return nil, validation.New(fmt.Sprintf("requirements[%d].threshold", i), "must be a whole number")
		}
		c.Requirements = append(c.Requirements, model.Requirement{Type: t, Threshold: r.Threshold})
	}

	for i, b := range in.Benefits {
		if err := validation.Amount(fmt.Sprintf("benefits[%d].value", i), b.Value); err != nil {
			return nil, err
		}
		c.Benefits = append(c.Benefits, model.Benefit{Type: model.BenefitType(b.Type), Value: b.Value})
	}

	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetCampaignActive включает или отключает кампанию.
func (s *Service) SetCampaignActive(ctx context.Context, campaignID int64, active bool) error {
	return s.repo.SetCampaignActive(ctx, campaignID, active)
}

// ListCampaigns возвращает кампании, при activeOnly только активные.
func (s *Service) ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error) {
	return s.repo.ListCampaigns(ctx, activeOnly)
}

// CustomerEligibility возвращает прогресс покупателя в кампании и результат проверки условий.
func (s *Service) CustomerEligibility(ctx context.Context, ownerID, customerID, campaignID int64) (*accrual.Eligibility, error) {
	if s.loyalty == nil {
		return nil, errFeatureDisabled
	}
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.loyalty.Eligibility(ctx, ownerID, customerID, campaignID)
}

// RedeemBenefit отмечает получение вознаграждения кампании покупателем.
func (s *Service) RedeemBenefit(ctx context.Context, ownerID, customerID, campaignID int64) (*model.CampaignProgress, error) {
	if s.loyalty == nil {
		return nil, errFeatureDisabled
	}
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.loyalty.Redeem(ctx, ownerID, customerID, campaignID)
}

// GamificationProfile возвращает игровые счётчики владельца и его уровень.
func (s *Service) GamificationProfile(ctx context.Context, ownerID int64) (*model.GamificationProfile, gamification.Level, error) {
	if s.tracker == nil {
		return nil, gamification.Level{}, errFeatureDisabled
	}
	if err := requireOwner(ownerID); err != nil {
		return nil, gamification.Level{}, err
	}
	return s.tracker.Profile(ctx, ownerID)
}

package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/service"
)

type requirementJSON struct {
	Type      string          `json:"type"`
	Threshold decimal.Decimal `json:"threshold"`
}

type benefitJSON struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type campaignRequest struct {
	Name         string            `json:"name"`
	StartsAt     string            `json:"starts_at"`
	EndsAt       string            `json:"ends_at"`
	Requirements []requirementJSON `json:"requirements"`
	Benefits     []benefitJSON     `json:"benefits"`
}

type campaignResponse struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	StartsAt     *string           `json:"starts_at,omitempty"`
	EndsAt       *string           `json:"ends_at,omitempty"`
	Active       bool              `json:"active"`
	Requirements []requirementJSON `json:"requirements,omitempty"`
	Benefits     []benefitJSON     `json:"benefits,omitempty"`
}

func toCampaignResponse(c model.Campaign) campaignResponse {
	resp := campaignResponse{
		ID:       c.ID,
		Name:     c.Name,
		StartsAt: formatTime(c.StartsAt),
		EndsAt:   formatTime(c.EndsAt),
		Active:   c.Active,
	}
	for _, r := range c.Requirements {
		resp.Requirements = append(resp.Requirements, requirementJSON{Type: string(r.Type), Threshold: r.Threshold})
	}
	resp.Benefits = toBenefitsJSON(c.Benefits)
	return resp
}

func toBenefitsJSON(benefits []model.Benefit) []benefitJSON {
	out := make([]benefitJSON, 0, len(benefits))
	for _, b := range benefits {
		out = append(out, benefitJSON{Type: string(b.Type), Value: b.Value})
	}
	return out
}

// ListCampaigns возвращает кампании лояльности.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		h.writeError(w, "list campaigns", err)
		return
	}

	campaigns, err := h.service.ListCampaigns(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, "list campaigns", err)
		return
	}

	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, toCampaignResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCampaign создаёт кампанию лояльности.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, "create campaign", err)
		return
	}

	startsAt, err := parseDate("starts_at", req.StartsAt)
	if err != nil {
		h.writeError(w, "create campaign", err)
		return
	}
	endsAt, err := parseDate("ends_at", req.EndsAt)
	if err != nil {
		h.writeError(w, "create campaign", err)
		return
	}

	in := service.CampaignInput{Name: req.Name, StartsAt: startsAt, EndsAt: endsAt}
	for _, rq := range req.Requirements {
		in.Requirements = append(in.Requirements, service.RequirementInput{Type: rq.Type, Threshold: rq.Threshold})
	}
	for _, b := range req.Benefits {
		in.Benefits = append(in.Benefits, service.BenefitInput{Type: b.Type, Value: b.Value})
	}

	c, err := h.service.CreateCampaign(r.Context(), in)
	if err != nil {
		h.writeError(w, "create campaign", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCampaignResponse(*c))
}

// UpdateCampaign включает или отключает кампанию.
func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "campaignID")
	if err != nil {
		h.writeError(w, "update campaign", err)
		return
	}

	active, err := decodeActive(r)
	if err != nil {
		h.writeError(w, "update campaign", err)
		return
	}

	if err := h.service.SetCampaignActive(r.Context(), campaignID, active); err != nil {
		h.writeError(w, "update campaign", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requirementResultJSON struct {
	Type      string          `json:"type"`
	Threshold decimal.Decimal `json:"threshold"`
	Met       bool            `json:"met"`
}

type progressResponse struct {
	CustomerID        int64   `json:"customer_id"`
	CampaignID        int64   `json:"campaign_id"`
	AccumulatedPoints int64   `json:"accumulated_points"`
	MetRequirements   bool    `json:"met_requirements"`
	FulfilledAt       *string `json:"fulfilled_at,omitempty"`
}

type eligibilityResponse struct {
	progressResponse
	Tier          string                  `json:"tier"`
	Eligible      bool                    `json:"eligible"`
	PurchaseCount int64                   `json:"purchase_count"`
	TotalSpent    decimal.Decimal         `json:"total_spent"`
	Requirements  []requirementResultJSON `json:"requirements"`
	Benefits      []benefitJSON           `json:"benefits"`
}

func toProgressResponse(p model.CampaignProgress) progressResponse {
	return progressResponse{
		CustomerID:        p.CustomerID,
		CampaignID:        p.CampaignID,
		AccumulatedPoints: p.AccumulatedPoints,
		MetRequirements:   p.MetRequirements,
		FulfilledAt:       formatTime(p.FulfilledAt),
	}
}

func customerCampaignIDs(r *http.Request) (int64, int64, error) {
	customerID, err := pathID(r, "customerID")
	if err != nil {
		return 0, 0, err
	}
	campaignID, err := pathID(r, "campaignID")
	if err != nil {
		return 0, 0, err
	}
	return customerID, campaignID, nil
}

// GetEligibility возвращает прогресс покупателя в кампании и проверку условий.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	customerID, campaignID, err := customerCampaignIDs(r)
	if err != nil {
		h.writeError(w, "get eligibility", err)
		return
	}

	el, err := h.service.CustomerEligibility(r.Context(), owner, customerID, campaignID)
	if err != nil {
		h.writeError(w, "get eligibility", err)
		return
	}

	resp := eligibilityResponse{
		progressResponse: toProgressResponse(el.Progress),
		Tier:             string(el.Tier),
		Eligible:         el.Eligible,
		PurchaseCount:    el.Stats.PurchaseCount,
		TotalSpent:       el.Stats.TotalSpent,
		Requirements:     make([]requirementResultJSON, 0, len(el.Requirements)),
		Benefits:         toBenefitsJSON(el.Campaign.Benefits),
	}
	for _, rr := range el.Requirements {
		resp.Requirements = append(resp.Requirements, requirementResultJSON{
			Type:      string(rr.Requirement.Type),
			Threshold: rr.Requirement.Threshold,
			Met:       rr.Met,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Redeem отмечает получение вознаграждения кампании.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	customerID, campaignID, err := customerCampaignIDs(r)
	if err != nil {
		h.writeError(w, "redeem", err)
		return
	}

	p, err := h.service.RedeemBenefit(r.Context(), owner, customerID, campaignID)
	if err != nil {
		h.writeError(w, "redeem", err)
		return
	}

	writeJSON(w, http.StatusOK, toProgressResponse(*p))
}

type profileResponse struct {
	TotalPoints     int64   `json:"total_points"`
	TotalSalesCount int64   `json:"total_sales_count"`
	Level           int     `json:"level"`
	LevelName       string  `json:"level_name"`
	Progress        float64 `json:"progress"`
	Message         string  `json:"message"`
	UpdatedAt       *string `json:"updated_at,omitempty"`
}

// GetProfile возвращает игровой профиль владельца.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	p, lvl, err := h.service.GamificationProfile(r.Context(), owner)
	if err != nil {
		h.writeError(w, "get profile", err)
		return
	}

	resp := profileResponse{
		TotalPoints:     p.TotalPoints,
		TotalSalesCount: p.TotalSalesCount,
		Level:           lvl.Number,
		LevelName:       lvl.Name,
		Progress:        lvl.Progress,
		Message:         lvl.Message,
	}
	if !p.UpdatedAt.IsZero() {
		s := p.UpdatedAt.Format(time.RFC3339)
		resp.UpdatedAt = &s
	}

	writeJSON(w, http.StatusOK, resp)
}

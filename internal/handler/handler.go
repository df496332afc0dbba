// Package handler содержит HTTP-обработчики API кассового сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-ledger/internal/accrual"
	"github.com/mmeshcher/pos-ledger/internal/gamification"
	"github.com/mmeshcher/pos-ledger/internal/middleware"
	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/repository"
	"github.com/mmeshcher/pos-ledger/internal/service"
	"github.com/mmeshcher/pos-ledger/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateSale(ctx context.Context, req service.SaleRequest) (*service.SaleResult, error)
	GetSale(ctx context.Context, ownerID, saleID int64) (*model.Sale, error)

	AdjustStock(ctx context.Context, ownerID int64, req service.MovementRequest) (*model.StockMovement, error)
	CreateArticle(ctx context.Context, ownerID int64, in service.ArticleInput) (*model.Article, error)
	SetArticleActive(ctx context.Context, ownerID, articleID int64, active bool) error
	ListStock(ctx context.Context, filter model.ArticleFilter) ([]model.Article, error)
	ListMovements(ctx context.Context, ownerID, articleID int64) ([]model.StockMovement, error)

	CreateCustomer(ctx context.Context, ownerID int64, name string) (*model.Customer, error)

	CreateCampaign(ctx context.Context, in service.CampaignInput) (*model.Campaign, error)
	SetCampaignActive(ctx context.Context, campaignID int64, active bool) error
	ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error)
	CustomerEligibility(ctx context.Context, ownerID, customerID, campaignID int64) (*accrual.Eligibility, error)
	RedeemBenefit(ctx context.Context, ownerID, customerID, campaignID int64) (*model.CampaignProgress, error)

	GamificationProfile(ctx context.Context, ownerID int64) (*model.GamificationProfile, gamification.Level, error)
}

// Handler реализует HTTP-обработчики API кассового сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrArticleNotFound),
		errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, repository.ErrCampaignNotFound),
		errors.Is(err, repository.ErrSaleNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrDuplicateCode),
		errors.Is(err, accrual.ErrRequirementsNotMet):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.String("request_id", w.Header().Get(middleware.RequestIDHeader)))
		http.Error(w, http.StatusText(status), status)
		return
	}

	h.logger.Debug(op+" rejected", zap.Error(err), zap.Int("status", status))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validation.New("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func ownerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, validation.New(name, "must be a positive integer")
	}
	return id, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, validation.New(name, "must be a boolean")
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, validation.New(name, "must be a non-negative integer")
	}
	return v, nil
}

// parseDate принимает RFC 3339 или дату без времени.
func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, nil
	}
	return nil, validation.New(field, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func decodeActive(r *http.Request) (bool, error) {
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil {
		return false, err
	}
	if req.Active == nil {
		return false, validation.New("active", "is required")
	}
	return *req.Active, nil
}

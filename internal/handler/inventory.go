package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/service"
)

type movementRequest struct {
	ArticleID int64  `json:"article_id"`
	Direction string `json:"direction"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
}

type movementResponse struct {
	ID            int64  `json:"id"`
	ArticleID     int64  `json:"article_id"`
	Direction     string `json:"direction"`
	Quantity      int64  `json:"quantity"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	Reference     string `json:"reference"`
	CreatedAt     string `json:"created_at"`
}

func toMovementResponse(m model.StockMovement) movementResponse {
	return movementResponse{
		ID:            m.ID,
		ArticleID:     m.ArticleID,
		Direction:     string(m.Direction),
		Quantity:      m.Quantity,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Reference:     m.Reference,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

type articleRequest struct {
	Name          string          `json:"name"`
	Code          *string         `json:"code"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	InitialStock  int64           `json:"initial_stock"`
}

type articleResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Code          *string         `json:"code,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	StockQuantity int64           `json:"stock_quantity"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Active        bool            `json:"active"`
	CreatedAt     string          `json:"created_at"`
}

func toArticleResponse(a model.Article) articleResponse {
	return articleResponse{
		ID:            a.ID,
		Name:          a.Name,
		Code:          a.Code,
		PurchasePrice: a.PurchasePrice,
		SalePrice:     a.SalePrice,
		StockQuantity: a.StockQuantity,
		TaxRate:       a.TaxRate,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

// CreateMovement проводит ручное движение по складу.
func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req movementRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, "create movement", err)
		return
	}

	m, err := h.service.AdjustStock(r.Context(), owner, service.MovementRequest{
		ArticleID: req.ArticleID,
		Direction: req.Direction,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeError(w, "create movement", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMovementResponse(*m))
}

// ListArticles возвращает товары владельца с фильтрацией и пагинацией.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	filter := model.ArticleFilter{OwnerID: owner, Search: r.URL.Query().Get("q")}

	var err error
	if filter.IncludeInactive, err = queryBool(r, "includeInactive"); err != nil {
		h.writeError(w, "list articles", err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, "list articles", err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, "list articles", err)
		return
	}

	articles, err := h.service.ListStock(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list articles", err)
		return
	}

	resp := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, toArticleResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateArticle создаёт товар владельца.
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req articleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, "create article", err)
		return
	}

	a, err := h.service.CreateArticle(r.Context(), owner, service.ArticleInput{
		Name:          req.Name,
		Code:          req.Code,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		TaxRate:       req.TaxRate,
		InitialStock:  req.InitialStock,
	})
	if err != nil {
		h.writeError(w, "create article", err)
		return
	}

	writeJSON(w, http.StatusCreated, toArticleResponse(*a))
}

// UpdateArticle включает или отключает товар.
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	articleID, err := pathID(r, "articleID")
	if err != nil {
		h.writeError(w, "update article", err)
		return
	}

	active, err := decodeActive(r)
	if err != nil {
		h.writeError(w, "update article", err)
		return
	}

	if err := h.service.SetArticleActive(r.Context(), owner, articleID, active); err != nil {
		h.writeError(w, "update article", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMovements возвращает журнал движений товара, новые записи первыми.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	articleID, err := pathID(r, "articleID")
	if err != nil {
		h.writeError(w, "list movements", err)
		return
	}

	movements, err := h.service.ListMovements(r.Context(), owner, articleID)
	if err != nil {
		h.writeError(w, "list movements", err)
		return
	}

	resp := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, toMovementResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

type customerRequest struct {
	Name string `json:"name"`
}

type customerResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// CreateCustomer регистрирует покупателя владельца.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, "create customer", err)
		return
	}

	c, err := h.service.CreateCustomer(r.Context(), owner, req.Name)
	if err != nil {
		h.writeError(w, "create customer", err)
		return
	}

	writeJSON(w, http.StatusCreated, customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	})
}

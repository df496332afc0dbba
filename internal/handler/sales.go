package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/service"
)

type saleItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type createSaleRequest struct {
	BranchID      int64             `json:"branch_id"`
	CustomerID    int64             `json:"customer_id"`
	Date          string            `json:"date"`
	Total         decimal.Decimal   `json:"total"`
	InvoiceNumber *string           `json:"invoice_number"`
	PaymentMethod string            `json:"payment_method"`
	Items         []saleItemRequest `json:"items"`
}

type saleLineResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type saleResponse struct {
	ID            int64              `json:"id"`
	BranchID      int64              `json:"branch_id"`
	CustomerID    *int64             `json:"customer_id"`
	Date          string             `json:"date"`
	Total         decimal.Decimal    `json:"total"`
	InvoiceNumber *string            `json:"invoice_number,omitempty"`
	PaymentMethod string             `json:"payment_method"`
	Items         []saleLineResponse `json:"items"`
}

type createSaleResponse struct {
	Sale           saleResponse    `json:"sale"`
	ItemsSoldCount int64           `json:"items_sold_count"`
	GrossProfit    decimal.Decimal `json:"grossProfit"`
	NetProfit      decimal.Decimal `json:"netProfit"`
}

func toSaleResponse(s model.Sale) saleResponse {
	resp := saleResponse{
		ID:            s.ID,
		BranchID:      s.BranchID,
		CustomerID:    s.CustomerID,
		Date:          s.SoldAt.Format(time.RFC3339),
		Total:         s.Total,
		InvoiceNumber: s.InvoiceNumber,
		PaymentMethod: string(s.PaymentMethod),
		Items:         make([]saleLineResponse, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		resp.Items = append(resp.Items, saleLineResponse{
			ID:        l.ID,
			ProductID: l.ArticleID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return resp
}

// CreateSale регистрирует продажу текущего владельца.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req createSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, "create sale", err)
		return
	}

	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeError(w, "create sale", err)
		return
	}

	in := service.SaleRequest{
		OwnerID:       owner,
		BranchID:      req.BranchID,
		CustomerID:    req.CustomerID,
		Date:          date,
		Total:         req.Total,
		InvoiceNumber: req.InvoiceNumber,
		PaymentMethod: req.PaymentMethod,
		Lines:         make([]service.SaleLineRequest, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Lines = append(in.Lines, service.SaleLineRequest{
			ArticleID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}

	res, err := h.service.CreateSale(r.Context(), in)
	if err != nil {
		h.writeError(w, "create sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, createSaleResponse{
		Sale:           toSaleResponse(res.Sale),
		ItemsSoldCount: res.ItemsSoldCount,
		GrossProfit:    res.GrossProfit.Round(2),
		NetProfit:      res.NetProfit.Round(2),
	})
}

// GetSale возвращает продажу со строками.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	saleID, err := pathID(r, "saleID")
	if err != nil {
		h.writeError(w, "get sale", err)
		return
	}

	sale, err := h.service.GetSale(r.Context(), owner, saleID)
	if err != nil {
		h.writeError(w, "get sale", err)
		return
	}

	writeJSON(w, http.StatusOK, toSaleResponse(*sale))
}

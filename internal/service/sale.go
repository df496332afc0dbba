package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/repository"
	"github.com/mmeshcher/pos-ledger/internal/validation"
)

// SaleLineRequest описывает строку создаваемой продажи. Subtotal принимается от вызывающего как есть.
type SaleLineRequest struct {
	ArticleID int64           `json:"product_id" validate:"gt=0"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SaleRequest описывает запрос на создание продажи. OwnerID подставляется слоем аутентификации.
type SaleRequest struct {
	OwnerID       int64             `json:"owner_id" validate:"gt=0"`
	BranchID      int64             `json:"branch_id" validate:"gte=0"`
	CustomerID    int64             `json:"customer_id" validate:"gt=0"`
	Date          *time.Time        `json:"date"`
	Total         decimal.Decimal   `json:"total"`
	InvoiceNumber *string           `json:"invoice_number" validate:"omitempty,max=64"`
	PaymentMethod string            `json:"payment_method"`
	Lines         []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

// SaleResult содержит зафиксированную продажу и рассчитанную прибыль.
type SaleResult struct {
	Sale           model.Sale
	ItemsSoldCount int64
	GrossProfit    decimal.Decimal
	NetProfit      decimal.Decimal
}

// CreateSale атомарно сохраняет продажу, её строки и списания со склада.
// Любая ошибка откатывает всю продажу. Начисления выполняются после фиксации и на результат не влияют.
func (s *Service) CreateSale(ctx context.Context, req SaleRequest) (*SaleResult, error) {
	method, err := validateSaleRequest(req)
	if err != nil {
		return nil, err
	}

	var invoice *string
	if req.InvoiceNumber != nil {
		if v := strings.TrimSpace(*req.InvoiceNumber); v != "" {
			invoice = &v
		}
	}

	var res *SaleResult
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		res = nil

		if err := tx.CheckCustomer(ctx, req.OwnerID, req.CustomerID); err != nil {
			return err
		}

		customerID := req.CustomerID
		sale := model.Sale{
			BranchID:      req.BranchID,
			OwnerID:       req.OwnerID,
			CustomerID:    &customerID,
			Total:         req.Total,
			InvoiceNumber: invoice,
			PaymentMethod: method,
			Lines:         make([]model.SaleLine, 0, len(req.Lines)),
		}
		if req.Date != nil {
			sale.SoldAt = *req.Date
		}

		if err := tx.InsertSale(ctx, &sale); err != nil {
			return err
		}

		var (
			gross decimal.Decimal
			net   decimal.Decimal
			items int64
		)
		reference := saleReference(sale.ID)

		for i, in := range req.Lines {
			line := model.SaleLine{
				SaleID:    sale.ID,
				ArticleID: in.ArticleID,
				Quantity:  in.Quantity,
				UnitPrice: in.UnitPrice,
				Subtotal:  in.Subtotal,
			}
			if err := tx.InsertSaleLine(ctx, &line); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}

			_, article, err := recordMovement(ctx, tx, req.OwnerID, in.ArticleID, model.DirectionOut, in.Quantity, reference)
			if err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}

			lineGross := in.UnitPrice.Sub(article.PurchasePrice).Mul(decimal.NewFromInt(in.Quantity))
			gross = gross.Add(lineGross)
			net = net.Add(lineGross.Mul(decimal.NewFromInt(1).Sub(article.TaxRate.Div(hundred))))
			items += in.Quantity

			sale.Lines = append(sale.Lines, line)
		}

		res = &SaleResult{
			Sale:           sale,
			ItemsSoldCount: items,
			GrossProfit:    gross,
			NetProfit:      net,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.checkTotal(res.Sale, req.Lines)

	s.logger.Info("sale created",
		zap.Int64("sale_id", res.Sale.ID),
		zap.Int64("owner_id", req.OwnerID),
		zap.Int("lines", len(res.Sale.Lines)),
		zap.Int64("items_sold", res.ItemsSoldCount),
		zap.String("total", res.Sale.Total.String()),
	)

	s.notifyCommitted(model.SaleCommitted{
		SaleID:        res.Sale.ID,
		OwnerID:       req.OwnerID,
		CustomerID:    req.CustomerID,
		Total:         res.Sale.Total,
		PaymentMethod: method,
	})

	return res, nil
}

// GetSale возвращает продажу владельца со строками.
func (s *Service) GetSale(ctx context.Context, ownerID, saleID int64) (*model.Sale, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.repo.GetSale(ctx, ownerID, saleID)
}

func saleReference(saleID int64) string {
	return fmt.Sprintf("sale:%d", saleID)
}

func validateSaleRequest(req SaleRequest) (model.PaymentMethod, error) {
	method, ok := model.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return "", validation.New("payment_method", "must be one of efectivo, tarjeta, qr")
	}
	if err := validation.Struct(req); err != nil {
		return "", err
	}
	if err := validation.Amount("total", req.Total); err != nil {
		return "", err
	}
	if !req.Total.IsPositive() {
		return "", validation.New("total", "must be greater than 0")
	}

	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return "", validation.Wrap(fmt.Sprintf("items[%d].quantity", i), ErrInvalidQuantity)
		}
		if err := validation.Amount(fmt.Sprintf("items[%d].unit_price", i), l.UnitPrice); err != nil {
			return "", err
		}
		if err := validation.Amount(fmt.Sprintf("items[%d].subtotal", i), l.Subtotal); err != nil {
			return "", err
		}
	}

	return method, nil
}

// checkTotal сверяет сумму продажи с суммой строк. Расхождение только логируется: сумма вызывающего считается верной.
func (s *Service) checkTotal(sale model.Sale, lines []SaleLineRequest) {
	linesTotal := decimal.Zero
	for _, l := range lines {
		linesTotal = linesTotal.Add(l.Subtotal)
	}
	if !linesTotal.Equal(sale.Total) {
		s.logger.Warn("sale total differs from line subtotals",
			zap.Int64("sale_id", sale.ID),
			zap.String("total", sale.Total.String()),
			zap.String("lines_total", linesTotal.String()),
		)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/repository"
	"github.com/mmeshcher/pos-ledger/internal/validation"
)

// ErrInvalidQuantity возвращается при неположительном количестве движения.
var ErrInvalidQuantity = errors.New("quantity must be a positive integer")

const initialStockReference = "initial"

var hundred = decimal.NewFromInt(100)

// RecordMovement изменяет остаток товара внутри переданной транзакции.
// Строка товара блокируется до конца транзакции; при нехватке остатка запись не выполняется.
func (s *Service) RecordMovement(ctx context.Context, tx repository.Tx, ownerID, articleID int64,
	direction model.Direction, quantity int64, reference string) (*model.StockMovement, error) {
	m, _, err := recordMovement(ctx, tx, ownerID, articleID, direction, quantity, reference)
	return m, err
}

func recordMovement(ctx context.Context, tx repository.Tx, ownerID, articleID int64,
	direction model.Direction, quantity int64, reference string) (*model.StockMovement, *model.Article, error) {
	if quantity <= 0 {
		return nil, nil, validation.Wrap("quantity", ErrInvalidQuantity)
	}
	if direction != model.DirectionIn && direction != model.DirectionOut {
		return nil, nil, validation.New("direction", "must be in or out")
	}

	article, err := tx.LockArticle(ctx, ownerID, articleID)
	if err != nil {
		return nil, nil, err
	}

	before := article.StockQuantity
	if direction == model.DirectionIn && before > math.MaxInt64-quantity {
		return nil, nil, validation.New("quantity", fmt.Sprintf("would overflow stock of article %d", articleID))
	}
	after := before + quantity
	if direction == model.DirectionOut {
		after = before - quantity
	}
	if after < 0 {
		return nil, nil, fmt.Errorf("%w: article %d has %d, requested %d",
			repository.ErrInsufficientStock, articleID, before, quantity)
	}

	m := &model.StockMovement{
		ArticleID:     articleID,
		Direction:     direction,
		Quantity:      quantity,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
	}
	if err := tx.InsertMovement(ctx, m); err != nil {
		return nil, nil, err
	}
	if err := tx.SetArticleStock(ctx, articleID, after); err != nil {
		return nil, nil, err
	}

	article.StockQuantity = after
	return m, article, nil
}

// MovementRequest описывает ручное движение по складу.
type MovementRequest struct {
	ArticleID int64  `json:"article_id" validate:"gt=0"`
	Direction string `json:"direction"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason" validate:"max=255"`
}

// AdjustStock проводит ручное движение товара владельца в отдельной транзакции.
func (s *Service) AdjustStock(ctx context.Context, ownerID int64, req MovementRequest) (*model.StockMovement, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	direction, ok := model.ParseDirection(req.Direction)
	if !ok {
		return nil, validation.New("direction", "must be one of entrada, salida, in, out")
	}
	if req.Quantity <= 0 {
		return nil, validation.Wrap("quantity", ErrInvalidQuantity)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var movement *model.StockMovement
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		m, _, err := recordMovement(ctx, tx, ownerID, req.ArticleID, direction, req.Quantity, strings.TrimSpace(req.Reason))
		if err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return movement, nil
}

// ArticleInput описывает новый товар.
type ArticleInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Code          *string         `json:"code" validate:"omitempty,max=64"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	InitialStock  int64           `json:"initial_stock" validate:"gte=0"`
}

// CreateArticle создаёт товар. Начальный остаток проводится движением, чтобы остаток совпадал с журналом.
func (s *Service) CreateArticle(ctx context.Context, ownerID int64, in ArticleInput) (*model.Article, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := validation.Amount("purchase_price", in.PurchasePrice); err != nil {
		return nil, err
	}
	if err := validation.Amount("sale_price", in.SalePrice); err != nil {
		return nil, err
	}
	if err := validation.Amount("tax_rate", in.TaxRate); err != nil {
		return nil, err
	}
	if in.TaxRate.GreaterThan(hundred) {
		return nil, validation.New("tax_rate", "must be between 0 and 100")
	}

	var code *string
	if in.Code != nil {
		if c := strings.TrimSpace(*in.Code); c != "" {
			code = &c
		}
	}

	var created *model.Article
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		a := &model.Article{
			OwnerID:       ownerID,
			Name:          strings.TrimSpace(in.Name),
			Code:          code,
			PurchasePrice: in.PurchasePrice,
			SalePrice:     in.SalePrice,
			TaxRate:       in.TaxRate,
			Active:        true,
		}
		if err := tx.InsertArticle(ctx, a); err != nil {
			return err
		}

		if in.InitialStock > 0 {
			_, locked, err := recordMovement(ctx, tx, ownerID, a.ID, model.DirectionIn, in.InitialStock, initialStockReference)
			if err != nil {
				return err
			}
			a.StockQuantity = locked.StockQuantity
		}

		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// SetArticleActive мягко отключает или включает товар.
func (s *Service) SetArticleActive(ctx context.Context, ownerID, articleID int64, active bool) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	return s.repo.SetArticleActive(ctx, ownerID, articleID, active)
}

const maxListLimit = 500

// ListStock возвращает товары владельца. Неактивные товары включаются только по флагу.
func (s *Service) ListStock(ctx context.Context, filter model.ArticleFilter) ([]model.Article, error) {
	if err := requireOwner(filter.OwnerID); err != nil {
		return nil, err
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, validation.New("limit", "limit and offset must not be negative")
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repo.ListArticles(ctx, filter)
}

// ListMovements возвращает журнал движений товара, новые записи первыми.
func (s *Service) ListMovements(ctx context.Context, ownerID, articleID int64) ([]model.StockMovement, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, ownerID, articleID)
}

func requireOwner(ownerID int64) error {
	if ownerID <= 0 {
		return validation.New("owner", "is required")
	}
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validation.New("name", "is required")
	}
	if len(name) > 200 {
		return validation.New("name", "must be at most 200")
	}
	return nil
}

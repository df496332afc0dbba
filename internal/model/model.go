// Package model содержит доменные сущности кассового сервиса: склад, продажи, лояльность.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction описывает направление движения товара на складе.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection принимает как внутренние, так и внешние (entrada/salida) обозначения.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "entrada":
		return DirectionIn, true
	case "out", "salida":
		return DirectionOut, true
	default:
		return "", false
	}
}

// PaymentMethod описывает способ оплаты продажи.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentQR   PaymentMethod = "qr"
)

// ParsePaymentMethod нормализует способ оплаты. Пустое значение означает наличные.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cash", "efectivo":
		return PaymentCash, true
	case "card", "tarjeta":
		return PaymentCard, true
	case "qr":
		return PaymentQR, true
	default:
		return "", false
	}
}

// Customer описывает покупателя, принадлежащего владельцу кассы.
type Customer struct {
	ID        int64
	OwnerID   int64
	Name      string
	CreatedAt time.Time
}

// Article описывает товар со складским остатком. StockQuantity всегда равен сумме движений.
type Article struct {
	ID            int64
	OwnerID       int64
	Name          string
	Code          *string
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	StockQuantity int64
	TaxRate       decimal.Decimal
	Active        bool
	CreatedAt     time.Time
}

// ArticleFilter задаёт критерии выборки товаров.
type ArticleFilter struct {
	OwnerID         int64
	IncludeInactive bool
	Search          string
	Limit           int
	Offset          int
}

// StockMovement представляет неизменяемую запись о движении товара.
type StockMovement struct {
	ID            int64
	ArticleID     int64
	Direction     Direction
	Quantity      int64
	BalanceBefore int64
	BalanceAfter  int64
	Reference     string
	CreatedAt     time.Time
}

// Sale представляет заголовок продажи. После создания не изменяется.
type Sale struct {
	ID            int64
	BranchID      int64
	OwnerID       int64
	CustomerID    *int64
	SoldAt        time.Time
	Total         decimal.Decimal
	InvoiceNumber *string
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
	Lines         []SaleLine
}

// SaleLine представляет строку продажи.
type SaleLine struct {
	ID        int64
	SaleID    int64
	ArticleID int64
	Quantity  int64
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// SaleCommitted передаётся пост-коммит обработчикам после фиксации продажи.
type SaleCommitted struct {
	SaleID        int64
	OwnerID       int64
	CustomerID    int64
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
}

// RequirementType описывает вид условия кампании лояльности.
type RequirementType string

const (
	RequirementPurchaseCount RequirementType = "purchase_count"
	RequirementAmount        RequirementType = "amount"
)

// BenefitType описывает вид вознаграждения кампании.
type BenefitType string

const (
	BenefitDiscount BenefitType = "discount"
	BenefitProduct  BenefitType = "product"
)

// Campaign описывает кампанию лояльности. Удаление выполняется только мягким отключением.
type Campaign struct {
	ID           int64
	Name         string
	StartsAt     *time.Time
	EndsAt       *time.Time
	Active       bool
	CreatedAt    time.Time
	Requirements []Requirement
	Benefits     []Benefit
}

// Requirement задаёт пороговое условие кампании.
type Requirement struct {
	ID         int64
	CampaignID int64
	Type       RequirementType
	Threshold  decimal.Decimal
}

// Benefit описывает вознаграждение кампании.
type Benefit struct {
	ID         int64
	CampaignID int64
	Type       BenefitType
	Value      decimal.Decimal
}

// CampaignProgress хранит накопленные баллы покупателя в рамках кампании.
type CampaignProgress struct {
	CustomerID        int64
	CampaignID        int64
	AccumulatedPoints int64
	MetRequirements   bool
	FulfilledAt       *time.Time
	UpdatedAt         time.Time
}

// CustomerStats содержит сводку покупок клиента у владельца.
type CustomerStats struct {
	PurchaseCount int64
	TotalSpent    decimal.Decimal
}

// GamificationProfile содержит счётчики геймификации пользователя.
type GamificationProfile struct {
	OwnerID         int64
	TotalPoints     int64
	TotalSalesCount int64
	UpdatedAt       time.Time
}

// Package accrual реализует начисление баллов лояльности по завершённым продажам.
package accrual

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

// Tier обозначает уровень покупателя, вычисляемый по накопленным баллам.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

var (
	pointsUnit = decimal.NewFromInt(1000)

	bonusRates = map[model.PaymentMethod]decimal.Decimal{
		model.PaymentCash: decimal.RequireFromString("0.20"),
		model.PaymentCard: decimal.RequireFromString("0.15"),
		model.PaymentQR:   decimal.RequireFromString("0.25"),
	}
)

// BonusRate возвращает надбавку к базовым баллам для способа оплаты.
func BonusRate(method model.PaymentMethod) decimal.Decimal {
	if rate, ok := bonusRates[method]; ok {
		return rate
	}
	return decimal.Zero
}

// ComputePoints: один базовый балл за каждые полные 1000 единиц суммы плюс округлённая вниз надбавка.
func ComputePoints(amount decimal.Decimal, method model.PaymentMethod) int64 {
	if !amount.IsPositive() {
		return 0
	}

	base := amount.Div(pointsUnit).Floor()
	bonus := base.Mul(BonusRate(method)).Floor()

	return base.Add(bonus).IntPart()
}

// TierOf определяет уровень по накопленным баллам.
func TierOf(points int64) Tier {
	switch {
	case points >= 100:
		return TierPlatinum
	case points >= 50:
		return TierGold
	case points >= 20:
		return TierSilver
	default:
		return TierBronze
	}
}

// EvaluateRequirement проверяет условие кампании по истории покупок. Неизвестный тип условия не выполняется.
func EvaluateRequirement(stats model.CustomerStats, req model.Requirement) bool {
	switch req.Type {
	case model.RequirementPurchaseCount:
		return decimal.NewFromInt(stats.PurchaseCount).GreaterThanOrEqual(req.Threshold)
	case model.RequirementAmount:
		return stats.TotalSpent.GreaterThanOrEqual(req.Threshold)
	default:
		return false
	}
}

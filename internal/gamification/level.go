// Package gamification ведёт игровые счётчики продавца и вычисляет его уровень.
package gamification

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

type tier struct {
	number   int
	name     string
	minSales int64
	minPts   int64
	message  string
}

// Уровни упорядочены; для перехода нужны оба порога одновременно.
var tiers = []tier{
	{1, "Rookie", 0, 0, "Every sale counts. Keep going!"},
	{2, "Seller", 10, 500, "You are getting the hang of it."},
	{3, "Expert", 50, 2500, "Customers can tell you know the shop."},
	{4, "Master", 150, 10000, "Few sellers ever get this far."},
	{5, "Legend", 500, 50000, "Top of the board."},
}

// Level описывает вычисленный уровень продавца.
type Level struct {
	Number   int
	Name     string
	Progress float64
	Message  string
}

// LevelOf вычисляет уровень по числу продаж и баллам. Progress равен доле пути до следующего уровня в [0,1].
func LevelOf(salesCount, points int64) Level {
	current := 0
	for i, t := range tiers {
		if salesCount >= t.minSales && points >= t.minPts {
			current = i
		}
	}

	cur := tiers[current]
	lvl := Level{Number: cur.number, Name: cur.name, Message: cur.message}

	if current == len(tiers)-1 {
		lvl.Progress = 1
		return lvl
	}

	next := tiers[current+1]
	lvl.Progress = min(
		fraction(salesCount, cur.minSales, next.minSales),
		fraction(points, cur.minPts, next.minPts),
	)
	return lvl
}

func fraction(v, from, to int64) float64 {
	if to <= from {
		return 1
	}
	f := float64(v-from) / float64(to-from)
	return max(0, min(1, f))
}

var pointDivisor = decimal.NewFromInt(10)

// PointsForSale начисляет один балл за каждые полные 10 единиц суммы продажи.
func PointsForSale(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Div(pointDivisor).Floor().IntPart()
}

// Store описывает хранилище игровых профилей.
type Store interface {
	AccrueGamification(ctx context.Context, ownerID, points int64) (*model.GamificationProfile, error)
	GetGamificationProfile(ctx context.Context, ownerID int64) (*model.GamificationProfile, error)
}

// Tracker обновляет игровые профили после продаж.
type Tracker struct {
	store Store
}

// NewTracker создаёт трекер поверх хранилища.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Accrue учитывает продажу пользователя: баллы и счётчик продаж увеличиваются атомарно.
func (t *Tracker) Accrue(ctx context.Context, ownerID int64, saleTotal decimal.Decimal) (*model.GamificationProfile, error) {
	p, err := t.store.AccrueGamification(ctx, ownerID, PointsForSale(saleTotal))
	if err != nil {
		return nil, fmt.Errorf("accrue gamification for owner %d: %w", ownerID, err)
	}
	return p, nil
}

// Profile возвращает профиль пользователя вместе с вычисленным уровнем.
func (t *Tracker) Profile(ctx context.Context, ownerID int64) (*model.GamificationProfile, Level, error) {
	p, err := t.store.GetGamificationProfile(ctx, ownerID)
	if err != nil {
		return nil, Level{}, err
	}
	return p, LevelOf(p.TotalSalesCount, p.TotalPoints), nil
}

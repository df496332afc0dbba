package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

// AccrueGamification увеличивает счётчики пользователя на points и одну продажу.
func (r *PostgresRepository) AccrueGamification(ctx context.Context, ownerID, points int64) (*model.GamificationProfile, error) {
	var p model.GamificationProfile
	err := r.pool.QueryRow(ctx,
		`INSERT INTO gamification_profiles (owner_id, total_points, total_sales_count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (owner_id) DO UPDATE
		 SET total_points = gamification_profiles.total_points + EXCLUDED.total_points,
		     total_sales_count = gamification_profiles.total_sales_count + 1,
		     updated_at = now()
		 RETURNING owner_id, total_points, total_sales_count, updated_at`,
		ownerID, points,
	).Scan(&p.OwnerID, &p.TotalPoints, &p.TotalSalesCount, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("accrue gamification: %w", err)
	}
	return &p, nil
}

// GetGamificationProfile возвращает счётчики пользователя. Если продаж ещё не было, возвращается нулевой профиль.
func (r *PostgresRepository) GetGamificationProfile(ctx context.Context, ownerID int64) (*model.GamificationProfile, error) {
	p := model.GamificationProfile{OwnerID: ownerID}
	err := r.pool.QueryRow(ctx,
		`SELECT total_points, total_sales_count, updated_at FROM gamification_profiles WHERE owner_id = $1`,
		ownerID,
	).Scan(&p.TotalPoints, &p.TotalSalesCount, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &p, nil
		}
		return nil, fmt.Errorf("select gamification profile: %w", err)
	}
	return &p, nil
}

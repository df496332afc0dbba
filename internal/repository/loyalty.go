package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

// CreateCampaign создаёт активную кампанию вместе с условиями и вознаграждениями.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO loyalty_campaigns (name, starts_at, ends_at, active)
		 VALUES ($1, $2, $3, TRUE)
		 RETURNING id, active, created_at`,
		c.Name, c.StartsAt, c.EndsAt,
	).Scan(&c.ID, &c.Active, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	for i := range c.Requirements {
		req := &c.Requirements[i]
		req.CampaignID = c.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO loyalty_requirements (campaign_id, type, threshold) VALUES ($1, $2, $3) RETURNING id`,
			c.ID, string(req.Type), thresholdToStorage(req.Type, req.Threshold),
		).Scan(&req.ID)
		if err != nil {
			return fmt.Errorf("insert requirement: %w", err)
		}
	}

	for i := range c.Benefits {
		b := &c.Benefits[i]
		b.CampaignID = c.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO loyalty_benefits (campaign_id, type, value) VALUES ($1, $2, $3) RETURNING id`,
			c.ID, string(b.Type), toHundredths(b.Value),
		).Scan(&b.ID)
		if err != nil {
			return fmt.Errorf("insert benefit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// SetCampaignActive переключает признак активности кампании. Физически кампании не удаляются.
func (r *PostgresRepository) SetCampaignActive(ctx context.Context, campaignID int64, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE loyalty_campaigns SET active = $2 WHERE id = $1`,
		campaignID, active,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrCampaignNotFound, campaignID)
	}
	return nil
}

// ListCampaigns возвращает кампании без условий и вознаграждений.
func (r *PostgresRepository) ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, starts_at, ends_at, active, created_at
		 FROM loyalty_campaigns
		 WHERE active OR NOT $1
		 ORDER BY id`,
		activeOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select campaigns: %w", err)
	}
	defer rows.Close()

	var res []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.StartsAt, &c.EndsAt, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetCampaign возвращает кампанию с условиями и вознаграждениями.
func (r *PostgresRepository) GetCampaign(ctx context.Context, campaignID int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, starts_at, ends_at, active, created_at FROM loyalty_campaigns WHERE id = $1`,
		campaignID,
	).Scan(&c.ID, &c.Name, &c.StartsAt, &c.EndsAt, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrCampaignNotFound, campaignID)
		}
		return nil, fmt.Errorf("select campaign: %w", err)
	}

	reqRows, err := r.pool.Query(ctx,
		`SELECT id, type, threshold FROM loyalty_requirements WHERE campaign_id = $1 ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select requirements: %w", err)
	}
	defer reqRows.Close()

	for reqRows.Next() {
		var (
			req       = model.Requirement{CampaignID: campaignID}
			typ       string
			threshold int64
		)
		if err := reqRows.Scan(&req.ID, &typ, &threshold); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		req.Type = model.RequirementType(typ)
		req.Threshold = thresholdFromStorage(req.Type, threshold)
		c.Requirements = append(c.Requirements, req)
	}
	if err := reqRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	benRows, err := r.pool.Query(ctx,
		`SELECT id, type, value FROM loyalty_benefits WHERE campaign_id = $1 ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select benefits: %w", err)
	}
	defer benRows.Close()

	for benRows.Next() {
		var (
			b     = model.Benefit{CampaignID: campaignID}
			typ   string
			value int64
		)
		if err := benRows.Scan(&b.ID, &typ, &value); err != nil {
			return nil, fmt.Errorf("scan benefit: %w", err)
		}
		b.Type = model.BenefitType(typ)
		b.Value = fromHundredths(value)
		c.Benefits = append(c.Benefits, b)
	}
	if err := benRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &c, nil
}

// AccrueActiveCampaigns начисляет баллы покупателю в каждой активной кампании одним запросом.
// Баллы прибавляются атомарно, без чтения предыдущего значения.
func (r *PostgresRepository) AccrueActiveCampaigns(ctx context.Context, customerID, points int64) ([]model.CampaignProgress, error) {
	rows, err := r.pool.Query(ctx,
		`INSERT INTO customer_campaign_progress (customer_id, campaign_id, accumulated_points)
		 SELECT $1, id, $2 FROM loyalty_campaigns WHERE active
		 ON CONFLICT (customer_id, campaign_id) DO UPDATE
		 SET accumulated_points = customer_campaign_progress.accumulated_points + EXCLUDED.accumulated_points,
		     updated_at = now()
		 RETURNING `+progressColumns,
		customerID, points,
	)
	if err != nil {
		return nil, fmt.Errorf("accrue points: %w", err)
	}
	defer rows.Close()

	var res []model.CampaignProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return nil, fmt.Errorf("%w: %d", ErrCustomerNotFound, customerID)
		}
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// EnsureProgress возвращает прогресс покупателя в кампании, создавая пустую запись при первом обращении.
func (r *PostgresRepository) EnsureProgress(ctx context.Context, customerID, campaignID int64) (*model.CampaignProgress, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO customer_campaign_progress (customer_id, campaign_id)
		 VALUES ($1, $2)
		 ON CONFLICT (customer_id, campaign_id) DO NOTHING`,
		customerID, campaignID,
	)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return nil, fmt.Errorf("%w: customer %d campaign %d", ErrCampaignNotFound, customerID, campaignID)
		}
		return nil, fmt.Errorf("insert progress: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+progressColumns+`
		 FROM customer_campaign_progress
		 WHERE customer_id = $1 AND campaign_id = $2`,
		customerID, campaignID,
	)
	p, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	return p, nil
}

// MarkFulfilled отмечает выполнение условий. Время выполнения фиксируется только в первый раз.
func (r *PostgresRepository) MarkFulfilled(ctx context.Context, customerID, campaignID int64) (*model.CampaignProgress, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO customer_campaign_progress (customer_id, campaign_id, met_requirements, fulfilled_at)
		 VALUES ($1, $2, TRUE, now())
		 ON CONFLICT (customer_id, campaign_id) DO UPDATE
		 SET met_requirements = TRUE,
		     fulfilled_at = COALESCE(customer_campaign_progress.fulfilled_at, EXCLUDED.fulfilled_at),
		     updated_at = now()
		 RETURNING `+progressColumns,
		customerID, campaignID,
	)
	p, err := scanProgress(row)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return nil, fmt.Errorf("%w: customer %d campaign %d", ErrCampaignNotFound, customerID, campaignID)
		}
		return nil, fmt.Errorf("mark fulfilled: %w", err)
	}
	return p, nil
}

// CustomerStats считает количество и сумму покупок клиента у владельца.
func (r *PostgresRepository) CustomerStats(ctx context.Context, ownerID, customerID int64) (*model.CustomerStats, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND owner_id = $2)`,
		customerID, ownerID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check customer: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrCustomerNotFound, customerID)
	}

	var (
		count int64
		spent int64
	)
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total), 0)
		 FROM sales
		 WHERE owner_id = $1 AND customer_id = $2`,
		ownerID, customerID,
	).Scan(&count, &spent)
	if err != nil {
		return nil, fmt.Errorf("sum sales: %w", err)
	}

	return &model.CustomerStats{
		PurchaseCount: count,
		TotalSpent:    fromHundredths(spent),
	}, nil
}

const progressColumns = `customer_id, campaign_id, accumulated_points, met_requirements, fulfilled_at, updated_at`

func scanProgress(row pgx.Row) (*model.CampaignProgress, error) {
	var p model.CampaignProgress
	if err := row.Scan(&p.CustomerID, &p.CampaignID, &p.AccumulatedPoints,
		&p.MetRequirements, &p.FulfilledAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func thresholdToStorage(t model.RequirementType, v decimal.Decimal) int64 {
	if t == model.RequirementAmount {
		return toHundredths(v)
	}
	return v.IntPart()
}

func thresholdFromStorage(t model.RequirementType, v int64) decimal.Decimal {
	if t == model.RequirementAmount {
		return fromHundredths(v)
	}
	return decimal.NewFromInt(v)
}

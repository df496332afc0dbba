package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

// ListArticles возвращает товары владельца по критериям фильтра. Блокировки не берутся.
func (r *PostgresRepository) ListArticles(ctx context.Context, filter model.ArticleFilter) ([]model.Article, error) {
	query, args := buildArticleQuery(filter)

	var articles []model.Article
	err := r.withRetry(ctx, isReadRetryable, func() error {
		articles = articles[:0]

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select articles: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanArticle(rows)
			if err != nil {
				return fmt.Errorf("scan article: %w", err)
			}
			articles = append(articles, *a)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return articles, nil
}

// buildArticleQuery собирает параметризованный запрос по фильтру.
func buildArticleQuery(f model.ArticleFilter) (string, []any) {
	where := []string{"owner_id = $1"}
	args := []any{f.OwnerID}

	if !f.IncludeInactive {
		where = append(where, "active")
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", n, n))
	}

	var b strings.Builder
	b.WriteString("SELECT " + articleColumns + " FROM articles WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	b.WriteString(" ORDER BY name, id")

	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SetArticleActive включает или отключает товар владельца.
func (r *PostgresRepository) SetArticleActive(ctx context.Context, ownerID, articleID int64, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE articles SET active = $3 WHERE id = $1 AND owner_id = $2`,
		articleID, ownerID, active,
	)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrArticleNotFound, articleID)
	}
	return nil
}

// ListMovements возвращает журнал движений товара, новые записи первыми.
func (r *PostgresRepository) ListMovements(ctx context.Context, ownerID, articleID int64) ([]model.StockMovement, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1 AND owner_id = $2)`,
		articleID, ownerID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check article: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrArticleNotFound, articleID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, article_id, direction, quantity, balance_before, balance_after, reference, created_at
		 FROM stock_movements
		 WHERE article_id = $1
		 ORDER BY created_at DESC, id DESC`,
		articleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	defer rows.Close()

	var res []model.StockMovement
	for rows.Next() {
		var (
			m         model.StockMovement
			direction string
		)
		if err := rows.Scan(&m.ID, &m.ArticleID, &direction, &m.Quantity,
			&m.BalanceBefore, &m.BalanceAfter, &m.Reference, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Direction = model.Direction(direction)
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCustomer регистрирует покупателя владельца.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, ownerID int64, name string) (*model.Customer, error) {
	c := model.Customer{OwnerID: ownerID, Name: name}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (owner_id, name) VALUES ($1, $2) RETURNING id, created_at`,
		ownerID, name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &c, nil
}

// GetSale возвращает продажу владельца вместе со строками.
func (r *PostgresRepository) GetSale(ctx context.Context, ownerID, saleID int64) (*model.Sale, error) {
	var (
		s       model.Sale
		total   int64
		payment string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, branch_id, owner_id, customer_id, sold_at, total, invoice_number, payment_method, created_at
		 FROM sales
		 WHERE id = $1 AND owner_id = $2`,
		saleID, ownerID,
	).Scan(&s.ID, &s.BranchID, &s.OwnerID, &s.CustomerID, &s.SoldAt, &total, &s.InvoiceNumber, &payment, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrSaleNotFound, saleID)
		}
		return nil, fmt.Errorf("select sale: %w", err)
	}
	s.Total = fromHundredths(total)
	s.PaymentMethod = model.PaymentMethod(payment)

	rows, err := r.pool.Query(ctx,
		`SELECT id, sale_id, article_id, quantity, unit_price, subtotal
		 FROM sale_lines
		 WHERE sale_id = $1
		 ORDER BY id`,
		saleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l         model.SaleLine
			unitPrice int64
			subtotal  int64
		)
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ArticleID, &l.Quantity, &unitPrice, &subtotal); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		l.UnitPrice = fromHundredths(unitPrice)
		l.Subtotal = fromHundredths(subtotal)
		s.Lines = append(s.Lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &s, nil
}

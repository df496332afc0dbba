package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pos-ledger/internal/model"
)

// Tx описывает единицу работы: операции записи, выполняемые внутри одной транзакции InTx.
// Значение действительно только до возврата из функции, переданной в InTx.
type Tx interface {
	CheckCustomer(ctx context.Context, ownerID, customerID int64) error
	InsertArticle(ctx context.Context, a *model.Article) error
	LockArticle(ctx context.Context, ownerID, articleID int64) (*model.Article, error)
	SetArticleStock(ctx context.Context, articleID, quantity int64) error
	InsertMovement(ctx context.Context, m *model.StockMovement) error
	InsertSale(ctx context.Context, s *model.Sale) error
	InsertSaleLine(ctx context.Context, l *model.SaleLine) error
}

type pgTx struct {
	tx pgx.Tx
}

// CheckCustomer проверяет, что покупатель существует и принадлежит владельцу.
func (t *pgTx) CheckCustomer(ctx context.Context, ownerID, customerID int64) error {
	var dummy int
	err := t.tx.QueryRow(ctx,
		`SELECT 1 FROM customers WHERE id = $1 AND owner_id = $2`,
		customerID, ownerID,
	).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrCustomerNotFound, customerID)
		}
		return fmt.Errorf("select customer: %w", err)
	}
	return nil
}

// InsertArticle создаёт товар с нулевым остатком; остаток меняется только движениями.
func (t *pgTx) InsertArticle(ctx context.Context, a *model.Article) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO articles (owner_id, name, code, purchase_price, sale_price, stock_quantity, tax_rate, active)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		 RETURNING id, created_at`,
		a.OwnerID, a.Name, a.Code,
		toHundredths(a.PurchasePrice), toHundredths(a.SalePrice), toHundredths(a.TaxRate), a.Active,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			code := ""
			if a.Code != nil {
				code = *a.Code
			}
			return fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		return fmt.Errorf("insert article: %w", err)
	}
	a.StockQuantity = 0
	return nil
}

// LockArticle блокирует строку товара до конца транзакции и возвращает её актуальное состояние.
func (t *pgTx) LockArticle(ctx context.Context, ownerID, articleID int64) (*model.Article, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+articleColumns+`
		 FROM articles
		 WHERE id = $1 AND owner_id = $2
		 FOR UPDATE`,
		articleID, ownerID,
	)

	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrArticleNotFound, articleID)
		}
		return nil, fmt.Errorf("lock article: %w", err)
	}
	return a, nil
}

// SetArticleStock сохраняет новый остаток товара.
func (t *pgTx) SetArticleStock(ctx context.Context, articleID, quantity int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE articles SET stock_quantity = $2 WHERE id = $1`,
		articleID, quantity,
	)
	if err != nil {
		if isPgError(err, pgerrcode.CheckViolation) {
			return fmt.Errorf("%w: article %d", ErrInsufficientStock, articleID)
		}
		return fmt.Errorf("update article stock: %w", err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrArticleNotFound, articleID)
	}
	return nil
}

// InsertMovement добавляет запись в журнал движений.
func (t *pgTx) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO stock_movements (article_id, direction, quantity, balance_before, balance_after, reference)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		m.ArticleID, string(m.Direction), m.Quantity, m.BalanceBefore, m.BalanceAfter, m.Reference,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// InsertSale сохраняет заголовок продажи. Нулевая дата заменяется текущим временем сервера.
func (t *pgTx) InsertSale(ctx context.Context, s *model.Sale) error {
	var soldAt any
	if !s.SoldAt.IsZero() {
		soldAt = s.SoldAt
	}

	err := t.tx.QueryRow(ctx,
		`INSERT INTO sales (branch_id, owner_id, customer_id, sold_at, total, invoice_number, payment_method)
		 VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()), $5, $6, $7)
		 RETURNING id, sold_at, created_at`,
		s.BranchID, s.OwnerID, s.CustomerID, soldAt, toHundredths(s.Total), s.InvoiceNumber, string(s.PaymentMethod),
	).Scan(&s.ID, &s.SoldAt, &s.CreatedAt)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, s.CustomerID)
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// InsertSaleLine сохраняет строку продажи.
func (t *pgTx) InsertSaleLine(ctx context.Context, l *model.SaleLine) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sale_lines (sale_id, article_id, quantity, unit_price, subtotal)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		l.SaleID, l.ArticleID, l.Quantity, toHundredths(l.UnitPrice), toHundredths(l.Subtotal),
	).Scan(&l.ID)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return fmt.Errorf("%w: %d", ErrArticleNotFound, l.ArticleID)
		}
		return fmt.Errorf("insert sale line: %w", err)
	}
	return nil
}

const articleColumns = `id, owner_id, name, code, purchase_price, sale_price, stock_quantity, tax_rate, active, created_at`

func scanArticle(row pgx.Row) (*model.Article, error) {
	var (
		a             model.Article
		purchasePrice int64
		salePrice     int64
		taxRate       int64
	)
	if err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.Code,
		&purchasePrice, &salePrice, &a.StockQuantity, &taxRate, &a.Active, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.PurchasePrice = fromHundredths(purchasePrice)
	a.SalePrice = fromHundredths(salePrice)
	a.TaxRate = fromHundredths(taxRate)
	return &a, nil
}

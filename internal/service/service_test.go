package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/pos-ledger/internal/accrual"
	"github.com/mmeshcher/pos-ledger/internal/gamification"
	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/repository"
	"github.com/mmeshcher/pos-ledger/internal/validation"
)

const testOwner int64 = 7

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, opts Options) (*Service, *memRepo, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	repo := newMemRepo()
	svc := NewService(repo, accrual.NewEngine(repo), gamification.NewTracker(repo), zap.New(core), opts)

	return svc, repo, logs
}

func mustArticle(t *testing.T, svc *Service, name string, purchase, sale, tax string, stock int64) *model.Article {
	t.Helper()

	a, err := svc.CreateArticle(context.Background(), testOwner, ArticleInput{
		Name:          name,
		PurchasePrice: dec(purchase),
		SalePrice:     dec(sale),
		TaxRate:       dec(tax),
		InitialStock:  stock,
	})
	require.NoError(t, err)
	return a
}

func mustCustomer(t *testing.T, svc *Service) *model.Customer {
	t.Helper()

	c, err := svc.CreateCustomer(context.Background(), testOwner, "Ana")
	require.NoError(t, err)
	return c
}

func stockOf(t *testing.T, svc *Service, articleID int64) int64 {
	t.Helper()

	list, err := svc.ListStock(context.Background(), model.ArticleFilter{OwnerID: testOwner, IncludeInactive: true})
	require.NoError(t, err)
	for _, a := range list {
		if a.ID == articleID {
			return a.StockQuantity
		}
	}
	t.Fatalf("article %d not listed", articleID)
	return 0
}

func TestCreateArticle_InitialStockIsJournaled(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	a := mustArticle(t, svc, "  Coffee ", "60", "100", "16", 12)
	assert.Equal(t, "Coffee", a.Name)
	assert.Equal(t, int64(12), a.StockQuantity)

	movements, err := svc.ListMovements(ctx, testOwner, a.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, model.DirectionIn, movements[0].Direction)
	assert.Equal(t, int64(0), movements[0].BalanceBefore)
	assert.Equal(t, int64(12), movements[0].BalanceAfter)
	assert.Equal(t, "initial", movements[0].Reference)
}

func TestCreateArticle_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   ArticleInput
	}{
		{name: "empty name", in: ArticleInput{}},
		{name: "negative price", in: ArticleInput{Name: "Tea", SalePrice: dec("-1")}},
		{name: "tax over 100", in: ArticleInput{Name: "Tea", TaxRate: dec("100.5")}},
		{name: "tax with three decimals", in: ArticleInput{Name: "Tea", TaxRate: dec("12.345")}},
		{name: "sub-cent purchase price", in: ArticleInput{Name: "Tea", PurchasePrice: dec("0.004")}},
		{name: "sale price out of range", in: ArticleInput{Name: "Tea", SalePrice: dec("1e20")}},
		{name: "negative stock", in: ArticleInput{Name: "Tea", InitialStock: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateArticle(ctx, testOwner, tt.in)
			assert.ErrorIs(t, err, validation.ErrInvalid)
		})
	}
}

func TestCreateArticle_TrailingZerosAreExact(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	a := mustArticle(t, svc, "Tea", "1.500", "2.9900", "16.50", 0)
	assert.True(t, dec("1.5").Equal(a.PurchasePrice))
	assert.True(t, dec("16.5").Equal(a.TaxRate))
}

func TestAdjustStock_InboundOverflowIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	a := mustArticle(t, svc, "Bolts", "1", "2", "0", math.MaxInt64-1)

	_, err := svc.AdjustStock(ctx, testOwner, MovementRequest{ArticleID: a.ID, Direction: "in", Quantity: 5})
	require.ErrorIs(t, err, validation.ErrInvalid)
	assert.NotErrorIs(t, err, repository.ErrInsufficientStock)

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)

	assert.Equal(t, int64(math.MaxInt64-1), stockOf(t, svc, a.ID))

	_, err = svc.AdjustStock(ctx, testOwner, MovementRequest{ArticleID: a.ID, Direction: "in", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), stockOf(t, svc, a.ID))
}

func TestCreateArticle_DuplicateCode(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	code := "SKU-1"

	_, err := svc.CreateArticle(ctx, testOwner, ArticleInput{Name: "Tea", Code: &code})
	require.NoError(t, err)

	_, err = svc.CreateArticle(ctx, testOwner, ArticleInput{Name: "Green tea", Code: &code})
	assert.ErrorIs(t, err, repository.ErrDuplicateCode)
}

func TestAdjustStock_BalanceMatchesJournal(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	a := mustArticle(t, svc, "Sugar", "1", "2", "0", 5)

	steps := []MovementRequest{
		{ArticleID: a.ID, Direction: "entrada", Quantity: 10, Reason: "restock"},
		{ArticleID: a.ID, Direction: "salida", Quantity: 3, Reason: "damaged"},
		{ArticleID: a.ID, Direction: "out", Quantity: 12},
		{ArticleID: a.ID, Direction: "in", Quantity: 1},
	}
	for _, s := range steps {
		_, err := svc.AdjustStock(ctx, testOwner, s)
		require.NoError(t, err)
	}

	movements, err := svc.ListMovements(ctx, testOwner, a.ID)
	require.NoError(t, err)
	require.Len(t, movements, 5)

	var sum int64
	for _, m := range movements {
		if m.Direction == model.DirectionIn {
			sum += m.Quantity
			assert.Equal(t, m.BalanceBefore+m.Quantity, m.BalanceAfter)
		} else {
			sum -= m.Quantity
			assert.Equal(t, m.BalanceBefore-m.Quantity, m.BalanceAfter)
		}
		assert.GreaterOrEqual(t, m.BalanceAfter, int64(0))
	}

	assert.Equal(t, int64(1), sum)
	assert.Equal(t, sum, stockOf(t, svc, a.ID))
	assert.Equal(t, "in", string(movements[0].Direction), "newest first")
	assert.Equal(t, "restock", movements[3].Reference)
}

func TestAdjustStock_Errors(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	a := mustArticle(t, svc, "Salt", "1", "2", "0", 2)

	_, err := svc.AdjustStock(ctx, testOwner, MovementRequest{ArticleID: a.ID, Direction: "out", Quantity: 3})
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	_, err = svc.AdjustStock(ctx, testOwner, MovementRequest{ArticleID: a.ID, Direction: "out", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.ErrorIs(t, err, validation.ErrInvalid)

	_, err = svc.AdjustStock(ctx, testOwner, MovementRequest{ArticleID: a.ID, Direction: "sideways", Quantity: 1})
	assert.ErrorIs(t, err, validation.ErrInvalid)

	_, err = svc.AdjustStock(ctx, testOwner+1, MovementRequest{ArticleID: a.ID, Direction: "in", Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrArticleNotFound)

	assert.Equal(t, int64(2), stockOf(t, svc, a.ID))
}

func TestRecordMovement_InsufficientStockWritesNothing(t *testing.T) {
	svc, repo, _ := newTestService(t, Options{})
	ctx := context.Background()
	a := mustArticle(t, svc, "Rice", "1", "2", "0", 4)

	var moveErr error
	err := repo.InTx(ctx, func(tx repository.Tx) error {
		_, moveErr = svc.RecordMovement(ctx, tx, testOwner, a.ID, model.DirectionOut, 5, "manual")
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, moveErr, repository.ErrInsufficientStock)

	movements, err := svc.ListMovements(ctx, testOwner, a.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
	assert.Equal(t, int64(4), stockOf(t, svc, a.ID))
}

func TestListStock_InactiveHiddenByDefault(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	keep := mustArticle(t, svc, "Bread", "1", "2", "0", 1)
	hide := mustArticle(t, svc, "Butter", "1", "2", "0", 1)

	require.NoError(t, svc.SetArticleActive(ctx, testOwner, hide.ID, false))

	list, err := svc.ListStock(ctx, model.ArticleFilter{OwnerID: testOwner})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)

	list, err = svc.ListStock(ctx, model.ArticleFilter{OwnerID: testOwner, IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.ListStock(ctx, model.ArticleFilter{OwnerID: testOwner, Limit: -1})
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func saleFor(customerID int64, total string, lines ...SaleLineRequest) SaleRequest {
	return SaleRequest{
		OwnerID:       testOwner,
		BranchID:      1,
		CustomerID:    customerID,
		Total:         dec(total),
		PaymentMethod: "tarjeta",
		Lines:         lines,
	}
}

func line(articleID, qty int64, unit, subtotal string) SaleLineRequest {
	return SaleLineRequest{ArticleID: articleID, Quantity: qty, UnitPrice: dec(unit), Subtotal: dec(subtotal)}
}

func TestCreateSale_DebitsStockAndComputesProfit(t *testing.T) {
	svc, _, logs := newTestService(t, Options{})
	ctx := context.Background()
	c := mustCustomer(t, svc)
	coffee := mustArticle(t, svc, "Coffee", "60", "100", "16", 10)
	milk := mustArticle(t, svc, "Milk", "10", "15", "0", 3)

	res, err := svc.CreateSale(ctx, saleFor(c.ID, "230",
		line(coffee.ID, 2, "100", "200"),
		line(milk.ID, 2, "15", "30"),
	))
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.ItemsSoldCount)
	assert.True(t, res.GrossProfit.Equal(dec("90")), "gross = %s", res.GrossProfit)
	assert.True(t, res.NetProfit.Equal(dec("77.2")), "net = %s", res.NetProfit)
	assert.Equal(t, model.PaymentCard, res.Sale.PaymentMethod)
	require.Len(t, res.Sale.Lines, 2)

	assert.Equal(t, int64(8), stockOf(t, svc, coffee.ID))
	assert.Equal(t, int64(1), stockOf(t, svc, milk.ID))

	movements, err := svc.ListMovements(ctx, testOwner, coffee.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, model.DirectionOut, movements[0].Direction)
	assert.Equal(t, saleReference(res.Sale.ID), movements[0].Reference)

	stored, err := svc.GetSale(ctx, testOwner, res.Sale.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Lines, 2)

	assert.Zero(t, logs.FilterMessage("sale total differs from line subtotals").Len())
	assert.Equal(t, 1, logs.FilterMessage("sale created").Len())
}

func TestCreateSale_AllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		second  func(ids [2]int64) SaleLineRequest
		wantErr error
	}{
		{
			name:    "second line short on stock",
			second:  func(ids [2]int64) SaleLineRequest { return line(ids[1], 5, "1", "5") },
			wantErr: repository.ErrInsufficientStock,
		},
		{
			name:    "second line unknown article",
			second:  func(ids [2]int64) SaleLineRequest { return line(9999, 1, "1", "1") },
			wantErr: repository.ErrArticleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t, Options{})
			ctx := context.Background()
			c := mustCustomer(t, svc)
			a := mustArticle(t, svc, "A", "1", "2", "0", 10)
			b := mustArticle(t, svc, "B", "1", "2", "0", 1)

			_, err := svc.CreateSale(ctx, saleFor(c.ID, "9",
				line(a.ID, 2, "2", "4"),
				tt.second([2]int64{a.ID, b.ID}),
			))
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, int64(10), stockOf(t, svc, a.ID))
			assert.Equal(t, int64(1), stockOf(t, svc, b.ID))
			assert.Empty(t, repo.st.sales)
			movements, err := svc.ListMovements(ctx, testOwner, a.ID)
			require.NoError(t, err)
			assert.Len(t, movements, 1)
		})
	}
}

func TestCreateSale_ConcurrentFullStock(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	c := mustCustomer(t, svc)
	a := mustArticle(t, svc, "Last one", "1", "2", "0", 3)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CreateSale(ctx, saleFor(c.ID, "6", line(a.ID, 3, "2", "6")))
		}()
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, int64(0), stockOf(t, svc, a.ID))
}

func TestCreateSale_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t, Options{})
	ctx := context.Background()
	c := mustCustomer(t, svc)
	a := mustArticle(t, svc, "A", "1", "2", "0", 10)
	before := repo.transactions()

	valid := func() SaleRequest { return saleFor(c.ID, "2", line(a.ID, 1, "2", "2")) }

	tests := []struct {
		name   string
		mutate func(r *SaleRequest)
		is     error
		field  string
	}{
		{name: "no lines", mutate: func(r *SaleRequest) { r.Lines = nil }, field: "items"},
		{name: "zero quantity", mutate: func(r *SaleRequest) { r.Lines[0].Quantity = 0 }, is: ErrInvalidQuantity, field: "items[0].quantity"},
		{name: "negative quantity", mutate: func(r *SaleRequest) { r.Lines[0].Quantity = -2 }, is: ErrInvalidQuantity},
		{name: "missing article", mutate: func(r *SaleRequest) { r.Lines[0].ArticleID = 0 }, field: "items[0].product_id"},
		{name: "negative unit price", mutate: func(r *SaleRequest) { r.Lines[0].UnitPrice = dec("-1") }, field: "items[0].unit_price"},
		{name: "zero total", mutate: func(r *SaleRequest) { r.Total = decimal.Zero }, field: "total"},
		{name: "sub-cent total", mutate: func(r *SaleRequest) { r.Total = dec("0.004") }, field: "total"},
		{name: "total with three decimals", mutate: func(r *SaleRequest) { r.Total = dec("10000.005") }, field: "total"},
		{name: "total out of range", mutate: func(r *SaleRequest) { r.Total = dec("1e20") }, field: "total"},
		{name: "sub-cent unit price", mutate: func(r *SaleRequest) { r.Lines[0].UnitPrice = dec("12.345") }, field: "items[0].unit_price"},
		{name: "subtotal out of range", mutate: func(r *SaleRequest) { r.Lines[0].Subtotal = dec("1e20") }, field: "items[0].subtotal"},
		{name: "missing customer", mutate: func(r *SaleRequest) { r.CustomerID = 0 }, field: "customer_id"},
		{name: "unknown payment method", mutate: func(r *SaleRequest) { r.PaymentMethod = "cheque" }, field: "payment_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)

			_, err := svc.CreateSale(ctx, req)
			require.ErrorIs(t, err, validation.ErrInvalid)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.field != "" {
				var verr *validation.Error
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}

	assert.Equal(t, before, repo.transactions(), "validation must reject before any transaction")
}

func TestCreateSale_ForeignCustomer(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()
	a := mustArticle(t, svc, "A", "1", "2", "0", 10)

	foreign, err := svc.CreateCustomer(ctx, testOwner+1, "Luis")
	require.NoError(t, err)

	_, err = svc.CreateSale(ctx, saleFor(foreign.ID, "2", line(a.ID, 1, "2", "2")))
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)
	assert.Equal(t, int64(10), stockOf(t, svc, a.ID))
}

func TestCreateSale_TotalMismatchIsLogged(t *testing.T) {
	svc, _, logs := newTestService(t, Options{})
	c := mustCustomer(t, svc)
	a := mustArticle(t, svc, "A", "1", "2", "0", 10)

	res, err := svc.CreateSale(context.Background(), saleFor(c.ID, "50", line(a.ID, 2, "2", "4")))
	require.NoError(t, err)
	assert.True(t, res.Sale.Total.Equal(dec("50")))

	warns := logs.FilterMessage("sale total differs from line subtotals").All()
	require.Len(t, warns, 1)
	assert.Equal(t, zapcore.WarnLevel, warns[0].Level)
	assert.Equal(t, "4", warns[0].ContextMap()["lines_total"])
}

func TestCreateSale_DefaultsToCash(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	c := mustCustomer(t, svc)
	a := mustArticle(t, svc, "A", "1", "2", "0", 10)

	req := saleFor(c.ID, "2", line(a.ID, 1, "2", "2"))
	req.PaymentMethod = ""

	res, err := svc.CreateSale(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCash, res.Sale.PaymentMethod)
}

func TestGetSale_ForeignOwner(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	c := mustCustomer(t, svc)
	a := mustArticle(t, svc, "A", "1", "2", "0", 10)

	res, err := svc.CreateSale(context.Background(), saleFor(c.ID, "2", line(a.ID, 1, "2", "2")))
	require.NoError(t, err)

	_, err = svc.GetSale(context.Background(), testOwner+1, res.Sale.ID)
	assert.ErrorIs(t, err, repository.ErrSaleNotFound)
}

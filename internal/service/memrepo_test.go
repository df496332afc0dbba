package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/repository"
)

type progressKey struct {
	customerID int64
	campaignID int64
}

type memState struct {
	nextID    int64
	customers map[int64]model.Customer
	articles  map[int64]model.Article
	movements []model.StockMovement
	sales     map[int64]model.Sale
	campaigns map[int64]model.Campaign
	progress  map[progressKey]model.CampaignProgress
	profiles  map[int64]model.GamificationProfile
}

func (s *memState) clone() *memState {
	c := *s
	c.customers = maps.Clone(s.customers)
	c.articles = maps.Clone(s.articles)
	c.movements = slices.Clone(s.movements)
	c.sales = make(map[int64]model.Sale, len(s.sales))
	for id, sale := range s.sales {
		sale.Lines = slices.Clone(sale.Lines)
		c.sales[id] = sale
	}
	c.campaigns = maps.Clone(s.campaigns)
	c.progress = maps.Clone(s.progress)
	c.profiles = maps.Clone(s.profiles)
	return &c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memRepo реализует хранилище в памяти с транзакционной семантикой InTx: fn работает с копией состояния,
// копия публикуется только при успехе. Транзакции выполняются последовательно.
type memRepo struct {
	mu      sync.Mutex
	st      *memState
	txCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{st: &memState{
		customers: map[int64]model.Customer{},
		articles:  map[int64]model.Article{},
		sales:     map[int64]model.Sale{},
		campaigns: map[int64]model.Campaign{},
		progress:  map[progressKey]model.CampaignProgress{},
		profiles:  map[int64]model.GamificationProfile{},
	}}
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txCalls++
	work := r.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	r.st = work
	return nil
}

func (r *memRepo) transactions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txCalls
}

type memTx struct {
	st *memState
}

func (t *memTx) CheckCustomer(ctx context.Context, ownerID, customerID int64) error {
	c, ok := t.st.customers[customerID]
	if !ok || c.OwnerID != ownerID {
		return fmt.Errorf("%w: %d", repository.ErrCustomerNotFound, customerID)
	}
	return nil
}

func (t *memTx) InsertArticle(ctx context.Context, a *model.Article) error {
	if a.Code != nil {
		for _, other := range t.st.articles {
			if other.OwnerID == a.OwnerID && other.Code != nil && *other.Code == *a.Code {
				return fmt.Errorf("%w: %s", repository.ErrDuplicateCode, *a.Code)
			}
		}
	}
	a.ID = t.st.id()
	a.CreatedAt = time.Now()
	t.st.articles[a.ID] = *a
	return nil
}

func (t *memTx) LockArticle(ctx context.Context, ownerID, articleID int64) (*model.Article, error) {
	a, ok := t.st.articles[articleID]
	if !ok || a.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %d", repository.ErrArticleNotFound, articleID)
	}
	return &a, nil
}

func (t *memTx) SetArticleStock(ctx context.Context, articleID, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("stock_quantity check violated for article %d", articleID)
	}
	a := t.st.articles[articleID]
	a.StockQuantity = quantity
	t.st.articles[articleID] = a
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	m.ID = t.st.id()
	m.CreatedAt = time.Now()
	t.st.movements = append(t.st.movements, *m)
	return nil
}

func (t *memTx) InsertSale(ctx context.Context, s *model.Sale) error {
	s.ID = t.st.id()
	s.CreatedAt = time.Now()
	if s.SoldAt.IsZero() {
		s.SoldAt = s.CreatedAt
	}
	stored := *s
	stored.Lines = nil
	t.st.sales[s.ID] = stored
	return nil
}

func (t *memTx) InsertSaleLine(ctx context.Context, l *model.SaleLine) error {
	if _, ok := t.st.articles[l.ArticleID]; !ok {
		return fmt.Errorf("%w: %d", repository.ErrArticleNotFound, l.ArticleID)
	}
	l.ID = t.st.id()
	sale := t.st.sales[l.SaleID]
	sale.Lines = append(sale.Lines, *l)
	t.st.sales[l.SaleID] = sale
	return nil
}

func (r *memRepo) ListArticles(ctx context.Context, f model.ArticleFilter) ([]model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Article
	for _, a := range r.st.articles {
		if a.OwnerID != f.OwnerID || (!a.Active && !f.IncludeInactive) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) SetArticleActive(ctx context.Context, ownerID, articleID int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.st.articles[articleID]
	if !ok || a.OwnerID != ownerID {
		return fmt.Errorf("%w: %d", repository.ErrArticleNotFound, articleID)
	}
	a.Active = active
	r.st.articles[articleID] = a
	return nil
}

func (r *memRepo) ListMovements(ctx context.Context, ownerID, articleID int64) ([]model.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.st.articles[articleID]
	if !ok || a.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %d", repository.ErrArticleNotFound, articleID)
	}

	var out []model.StockMovement
	for i := len(r.st.movements) - 1; i >= 0; i-- {
		if r.st.movements[i].ArticleID == articleID {
			out = append(out, r.st.movements[i])
		}
	}
	return out, nil
}

func (r *memRepo) GetSale(ctx context.Context, ownerID, saleID int64) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.st.sales[saleID]
	if !ok || s.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %d", repository.ErrSaleNotFound, saleID)
	}
	s.Lines = slices.Clone(s.Lines)
	return &s, nil
}

func (r *memRepo) CreateCustomer(ctx context.Context, ownerID int64, name string) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := model.Customer{ID: r.st.id(), OwnerID: ownerID, Name: name, CreatedAt: time.Now()}
	r.st.customers[c.ID] = c
	return &c, nil
}

func (r *memRepo) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.ID = r.st.id()
	c.Active = true
	c.CreatedAt = time.Now()
	for i := range c.Requirements {
		c.Requirements[i].ID = r.st.id()
		c.Requirements[i].CampaignID = c.ID
	}
	for i := range c.Benefits {
		c.Benefits[i].ID = r.st.id()
		c.Benefits[i].CampaignID = c.ID
	}
	r.st.campaigns[c.ID] = *c
	return nil
}

func (r *memRepo) SetCampaignActive(ctx context.Context, campaignID int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.st.campaigns[campaignID]
	if !ok {
		return fmt.Errorf("%w: %d", repository.ErrCampaignNotFound, campaignID)
	}
	c.Active = active
	r.st.campaigns[campaignID] = c
	return nil
}

func (r *memRepo) ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Campaign
	for _, c := range r.st.campaigns {
		if activeOnly && !c.Active {
			continue
		}
		c.Requirements, c.Benefits = nil, nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) GetCampaign(ctx context.Context, campaignID int64) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.st.campaigns[campaignID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", repository.ErrCampaignNotFound, campaignID)
	}
	return &c, nil
}

func (r *memRepo) AccrueActiveCampaigns(ctx context.Context, customerID, points int64) ([]model.CampaignProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.CampaignProgress
	for id, c := range r.st.campaigns {
		if !c.Active {
			continue
		}
		key := progressKey{customerID, id}
		p, ok := r.st.progress[key]
		if !ok {
			p = model.CampaignProgress{CustomerID: customerID, CampaignID: id}
		}
		p.AccumulatedPoints += points
		p.UpdatedAt = time.Now()
		r.st.progress[key] = p
		out = append(out, p)
	}
	return out, nil
}

func (r *memRepo) EnsureProgress(ctx context.Context, customerID, campaignID int64) (*model.CampaignProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := progressKey{customerID, campaignID}
	p, ok := r.st.progress[key]
	if !ok {
		p = model.CampaignProgress{CustomerID: customerID, CampaignID: campaignID, UpdatedAt: time.Now()}
		r.st.progress[key] = p
	}
	return &p, nil
}

func (r *memRepo) MarkFulfilled(ctx context.Context, customerID, campaignID int64) (*model.CampaignProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := progressKey{customerID, campaignID}
	p := r.st.progress[key]
	p.CustomerID, p.CampaignID = customerID, campaignID
	p.MetRequirements = true
	if p.FulfilledAt == nil {
		now := time.Now()
		p.FulfilledAt = &now
	}
	r.st.progress[key] = p
	return &p, nil
}

func (r *memRepo) CustomerStats(ctx context.Context, ownerID, customerID int64) (*model.CustomerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.st.customers[customerID]
	if !ok || c.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %d", repository.ErrCustomerNotFound, customerID)
	}

	stats := &model.CustomerStats{TotalSpent: decimal.Zero}
	for _, s := range r.st.sales {
		if s.OwnerID == ownerID && s.CustomerID != nil && *s.CustomerID == customerID {
			stats.PurchaseCount++
			stats.TotalSpent = stats.TotalSpent.Add(s.Total)
		}
	}
	return stats, nil
}

func (r *memRepo) AccrueGamification(ctx context.Context, ownerID, points int64) (*model.GamificationProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.st.profiles[ownerID]
	p.OwnerID = ownerID
	p.TotalPoints += points
	p.TotalSalesCount++
	p.UpdatedAt = time.Now()
	r.st.profiles[ownerID] = p
	return &p, nil
}

func (r *memRepo) GetGamificationProfile(ctx context.Context, ownerID int64) (*model.GamificationProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.st.profiles[ownerID]
	if !ok {
		return &model.GamificationProfile{OwnerID: ownerID}, nil
	}
	return &p, nil
}

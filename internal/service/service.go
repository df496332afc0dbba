// Package service реализует бизнес-логику кассы: складской журнал, продажи и пост-коммит начисления.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-ledger/internal/accrual"
	"github.com/mmeshcher/pos-ledger/internal/gamification"
	"github.com/mmeshcher/pos-ledger/internal/model"
	"github.com/mmeshcher/pos-ledger/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(repository.Tx) error) error
	ListArticles(ctx context.Context, filter model.ArticleFilter) ([]model.Article, error)
	SetArticleActive(ctx context.Context, ownerID, articleID int64, active bool) error
	ListMovements(ctx context.Context, ownerID, articleID int64) ([]model.StockMovement, error)
	GetSale(ctx context.Context, ownerID, saleID int64) (*model.Sale, error)
	CreateCustomer(ctx context.Context, ownerID int64, name string) (*model.Customer, error)
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	SetCampaignActive(ctx context.Context, campaignID int64, active bool) error
	ListCampaigns(ctx context.Context, activeOnly bool) ([]model.Campaign, error)
}

const (
	defaultRewardQueueSize = 256
	defaultRewardTimeout   = 10 * time.Second
)

// Options задаёт параметры пост-коммит обработки.
type Options struct {
	RewardQueueSize int
	RewardTimeout   time.Duration
	// Hooks дополняют стандартные шаги начисления лояльности и геймификации.
	Hooks []PostCommitHook
}

// Service содержит бизнес-логику кассового сервиса.
type Service struct {
	repo    Repository
	logger  *zap.Logger
	loyalty *accrual.Engine
	tracker *gamification.Tracker

	hooks         []PostCommitHook
	rewards       chan model.SaleCommitted
	rewardTimeout time.Duration
	wg            sync.WaitGroup
}

// NewService создаёт сервис. Нулевые loyalty или tracker отключают соответствующий шаг начислений.
func NewService(repo Repository, loyalty *accrual.Engine, tracker *gamification.Tracker, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RewardQueueSize <= 0 {
		opts.RewardQueueSize = defaultRewardQueueSize
	}
	if opts.RewardTimeout <= 0 {
		opts.RewardTimeout = defaultRewardTimeout
	}

	var hooks []PostCommitHook
	if loyalty != nil {
		hooks = append(hooks, NewLoyaltyHook(loyalty))
	}
	if tracker != nil {
		hooks = append(hooks, NewGamificationHook(tracker))
	}
	hooks = append(hooks, opts.Hooks...)

	return &Service{
		repo:          repo,
		logger:        logger,
		loyalty:       loyalty,
		tracker:       tracker,
		hooks:         hooks,
		rewards:       make(chan model.SaleCommitted, opts.RewardQueueSize),
		rewardTimeout: opts.RewardTimeout,
	}
}

// Close дожидается завершения начислений, обрабатывает оставшуюся очередь и закрывает хранилище.
func (s *Service) Close() error {
	s.wg.Wait()
	s.drainRewards()

	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// errFeatureDisabled возвращается, если компонент не подключён при создании сервиса.
var errFeatureDisabled = errors.New("feature is not configured")

// CreateCustomer регистрирует покупателя владельца.
func (s *Service) CreateCustomer(ctx context.Context, ownerID int64, name string) (*model.Customer, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	return s.repo.CreateCustomer(ctx, ownerID, strings.TrimSpace(name))
}

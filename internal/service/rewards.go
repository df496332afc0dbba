package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-ledger/internal/accrual"
	"github.com/mmeshcher/pos-ledger/internal/gamification"
	"github.com/mmeshcher/pos-ledger/internal/model"
)

// PostCommitHook выполняется после фиксации продажи. Ошибка хука логируется и не влияет на продажу.
type PostCommitHook interface {
	Name() string
	SaleCommitted(ctx context.Context, evt model.SaleCommitted) error
}

type loyaltyHook struct {
	engine *accrual.Engine
}

// NewLoyaltyHook начисляет баллы лояльности покупателю продажи.
func NewLoyaltyHook(engine *accrual.Engine) PostCommitHook {
	return &loyaltyHook{engine: engine}
}

func (h *loyaltyHook) Name() string { return "loyalty" }

func (h *loyaltyHook) SaleCommitted(ctx context.Context, evt model.SaleCommitted) error {
	if evt.CustomerID <= 0 {
		return nil
	}
	_, _, err := h.engine.Accrue(ctx, evt.CustomerID, evt.Total, evt.PaymentMethod)
	return err
}

type gamificationHook struct {
	tracker *gamification.Tracker
}

// NewGamificationHook обновляет игровой профиль продавца.
func NewGamificationHook(tracker *gamification.Tracker) PostCommitHook {
	return &gamificationHook{tracker: tracker}
}

func (h *gamificationHook) Name() string { return "gamification" }

func (h *gamificationHook) SaleCommitted(ctx context.Context, evt model.SaleCommitted) error {
	_, err := h.tracker.Accrue(ctx, evt.OwnerID, evt.Total)
	return err
}

// StartRewardUpdates запускает фоновую обработку начислений по зафиксированным продажам.
// Close нужно вызывать после отмены ctx: он дожидается завершения обработчика.
func (s *Service) StartRewardUpdates(ctx context.Context) {
	if len(s.hooks) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-s.rewards:
				s.applyRewards(evt)
			}
		}
	}()
}

func (s *Service) notifyCommitted(evt model.SaleCommitted) {
	if len(s.hooks) == 0 {
		return
	}

	select {
	case s.rewards <- evt:
	default:
		s.logger.Debug("reward queue is full, processing inline", zap.Int64("sale_id", evt.SaleID))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.applyRewards(evt)
		}()
	}
}

func (s *Service) applyRewards(evt model.SaleCommitted) {
	for _, h := range s.hooks {
		if err := s.runHook(h, evt); err != nil {
			s.logger.Warn("post-commit hook failed",
				zap.String("hook", h.Name()),
				zap.Int64("sale_id", evt.SaleID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) runHook(h PostCommitHook, evt model.SaleCommitted) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.rewardTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return h.SaleCommitted(ctx, evt)
}

func (s *Service) drainRewards() {
	for {
		select {
		case evt := <-s.rewards:
			s.applyRewards(evt)
		default:
			return
		}
	}
}

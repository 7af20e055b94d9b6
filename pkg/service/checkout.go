// Package service wires the checkout engine to its post-commit side
// effects: admin notifications, order events and the order cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/notify"
	"go.uber.org/zap"
)

type Committer interface {
	Commit(ctx context.Context, req checkout.Request) (*models.Order, error)
}

type NotificationDispatcher interface {
	Dispatch(msg *notify.OrderPlaced)
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order *models.Order) error
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type OrderCache interface {
	CacheOrder(ctx context.Context, order *models.Order) error
	GetCachedOrder(ctx context.Context, id string) (*models.Order, error)
}

type Options struct {
	MinOrderValue  float64
	CommitTimeout  time.Duration
	PublishTimeout time.Duration
}

// CheckoutService validates requests, commits them and runs best-effort
// side effects once the order is durable.
type CheckoutService struct {
	committer  Committer
	orders     OrderReader
	dispatcher NotificationDispatcher
	publisher  EventPublisher
	cache      OrderCache
	opts       Options
	logger     *zap.Logger
}

// NewCheckoutService builds the service. dispatcher, publisher and cache
// may be nil when those integrations are disabled.
func NewCheckoutService(committer Committer, orders OrderReader, dispatcher NotificationDispatcher,
	publisher EventPublisher, cache OrderCache, opts Options, logger *zap.Logger) *CheckoutService {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &CheckoutService{
		committer:  committer,
		orders:     orders,
		dispatcher: dispatcher,
		publisher:  publisher,
		cache:      cache,
		opts:       opts,
		logger:     logger,
	}
}

// Validate checks the parts of a request that do not need the catalog.
func (s *CheckoutService) Validate(req checkout.Request) error {
	if err := checkout.ValidateLines(req.Lines); err != nil {
		return err
	}
	d := req.Delivery
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", d.Name},
		{"phone", d.Phone},
		{"address", d.Address},
		{"area", d.Area},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing delivery %s", checkout.ErrInvalidCart, strings.Join(missing, ", "))
	}
	if d.DeliveryDate != "" {
		if _, err := time.Parse(time.DateOnly, d.DeliveryDate); err != nil {
			return fmt.Errorf("%w: delivery date %q is not YYYY-MM-DD", checkout.ErrInvalidCart, d.DeliveryDate)
		}
	}
	if !req.IsManual && req.OrderType != models.OrderTypeSubscription && !req.AgreedToTerms {
		return fmt.Errorf("%w: terms must be accepted", checkout.ErrInvalidCart)
	}
	if !req.ComputeTotal && req.TotalAmount < s.opts.MinOrderValue {
		return fmt.Errorf("%w: minimum order value is %g", checkout.ErrInvalidCart, s.opts.MinOrderValue)
	}
	return nil
}

// PlaceOrder commits req and, only after the commit succeeded, notifies
// admins, publishes the order event and warms the cache. Failures after the
// commit are logged and never returned.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req checkout.Request) (*models.Order, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	commitCtx := ctx
	if s.opts.CommitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, s.opts.CommitTimeout)
		defer cancel()
	}

	start := time.Now()
	order, err := s.committer.Commit(commitCtx, req)
	if err != nil {
		s.logCommitFailure(req, err)
		return nil, err
	}
	s.logger.Info("Order committed",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.String("order_type", string(order.OrderType)),
		zap.Int("items", len(order.Items)),
		zap.Float64("total", order.TotalAmount),
		zap.Duration("latency", time.Since(start)))

	s.afterCommit(ctx, order)
	return order, nil
}

func (s *CheckoutService) logCommitFailure(req checkout.Request, err error) {
	fields := []zap.Field{
		zap.String("customer_id", req.CustomerID),
		zap.Int("lines", len(req.Lines)),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, checkout.ErrCommitUnknown):
		s.logger.Error("Checkout commit outcome unknown", fields...)
	case errors.Is(err, checkout.ErrCounterConflict):
		s.logger.Warn("Checkout lost a concurrent commit", fields...)
	case errors.Is(err, checkout.ErrTransactionAborted):
		s.logger.Error("Checkout transaction aborted", fields...)
	default:
		s.logger.Info("Checkout rejected", fields...)
	}
}

func (s *CheckoutService) afterCommit(ctx context.Context, order *models.Order) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(&notify.OrderPlaced{
			OrderID:      order.ID,
			Total:        order.TotalAmount,
			CustomerName: order.Name,
		})
	}

	// The request may be cancelled once the response is written.
	bg := context.WithoutCancel(ctx)
	if s.publisher != nil {
		pctx, cancel := context.WithTimeout(bg, s.opts.PublishTimeout)
		if err := s.publisher.PublishOrderPlaced(pctx, order); err != nil {
			s.logger.Error("Failed to publish order event", zap.String("order_id", order.ID), zap.Error(err))
		}
		cancel()
	}
	if s.cache != nil {
		if err := s.cache.CacheOrder(bg, order); err != nil {
			s.logger.Warn("Failed to cache order", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}

// GetOrder reads through the cache to the order store.
func (s *CheckoutService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.cache != nil {
		cached, err := s.cache.GetCachedOrder(ctx, id)
		if err != nil {
			s.logger.Warn("Order cache read failed", zap.String("order_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.CacheOrder(ctx, order); err != nil {
			s.logger.Warn("Failed to cache order", zap.String("order_id", id), zap.Error(err))
		}
	}
	return order, nil
}

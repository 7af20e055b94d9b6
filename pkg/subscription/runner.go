// Package subscription places the orders that recurring subscriptions are
// due for on a given day.
package subscription

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/models"
	"go.uber.org/zap"
)

type Source interface {
	ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
	HasSubscriptionOrder(ctx context.Context, subscriptionID, deliveryDate string) (bool, error)
}

type CustomerDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*models.Order, error)
}

// Report summarises one run.
type Report struct {
	Created  int
	Skipped  int
	Failed   int
	OrderIDs []string
}

type Runner struct {
	source      Source
	customers   CustomerDirectory
	placer      OrderPlacer
	maxAttempts int
	loc         *time.Location
	logger      *zap.Logger
}

func NewRunner(source Source, customers CustomerDirectory, placer OrderPlacer, maxAttempts int, loc *time.Location, logger *zap.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		source:      source,
		customers:   customers,
		placer:      placer,
		maxAttempts: maxAttempts,
		loc:         loc,
		logger:      logger,
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// Due reports whether sub wants a delivery on the day containing now, and
// why not when it does not.
func Due(sub models.Subscription, now time.Time, loc *time.Location) (bool, string) {
	today := startOfDay(now, loc)
	start := startOfDay(sub.StartDate, loc)
	if start.After(today) {
		return false, "not started"
	}
	if sub.EndDate != nil && startOfDay(*sub.EndDate, loc).Before(today) {
		return false, "ended"
	}

	switch sub.Frequency {
	case models.FrequencyDaily:
		return true, ""
	case models.FrequencyWeekend:
		if wd := today.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return true, ""
		}
		return false, "weekday"
	case models.FrequencyAlternate:
		if daysBetween(start, today)%2 == 0 {
			return true, ""
		}
		return false, "off day"
	case models.FrequencyCustom:
		if slices.Contains(sub.CustomDays, today.Weekday()) {
			return true, ""
		}
		return false, "not a chosen day"
	default:
		return false, fmt.Sprintf("unknown frequency %q", sub.Frequency)
	}
}

// RunDue places today's order for every due subscription. A failing
// subscription is logged and counted, and the run continues.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (*Report, error) {
	subs, err := r.source.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	date := startOfDay(now, r.loc).Format(time.DateOnly)
	report := &Report{}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := r.logger.With(zap.String("subscription_id", sub.ID), zap.String("delivery_date", date))

		if due, reason := Due(sub, now, r.loc); !due {
			log.Debug("Subscription not due", zap.String("reason", reason))
			report.Skipped++
			continue
		}
		if len(sub.Items) == 0 {
			log.Debug("Subscription has no items")
			report.Skipped++
			continue
		}
		exists, err := r.source.HasSubscriptionOrder(ctx, sub.ID, date)
		if err != nil {
			log.Error("Failed to check existing order", zap.Error(err))
			report.Failed++
			continue
		}
		if exists {
			log.Debug("Subscription already ordered today")
			report.Skipped++
			continue
		}

		order, err := r.place(ctx, sub, date)
		if err != nil {
			log.Error("Failed to create subscription order", zap.Error(err))
			report.Failed++
			continue
		}
		log.Info("Subscription order created", zap.String("order_id", order.ID))
		report.Created++
		report.OrderIDs = append(report.OrderIDs, order.ID)
	}

	r.logger.Info("Subscription run finished",
		zap.String("delivery_date", date),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (r *Runner) place(ctx context.Context, sub models.Subscription, date string) (*models.Order, error) {
	customer, err := r.customers.GetUser(ctx, sub.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer %s: %w", sub.CustomerID, err)
	}

	lines := make([]models.CartLine, 0, len(sub.Items))
	for _, it := range sub.Items {
		lines = append(lines, models.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	area := sub.Area
	if area == "" {
		area = customer.Area
	}
	req := checkout.Request{
		CustomerID: sub.CustomerID,
		Lines:      lines,
		Delivery: models.DeliveryInfo{
			Name:         customer.Name,
			Phone:        customer.Phone,
			Address:      customer.Address,
			Area:         area,
			DeliveryDate: date,
			DeliverySlot: sub.DeliverySlot,
		},
		AgreedToTerms:  true,
		OrderType:      models.OrderTypeSubscription,
		SubscriptionID: sub.ID,
		ComputeTotal:   true,
	}

	var order *models.Order
	err = checkout.RetryOnConflict(ctx, r.maxAttempts, func(ctx context.Context) error {
		var err error
		order, err = r.placer.PlaceOrder(ctx, req)
		return err
	})
	return order, err
}

// Run calls RunDue immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
			r.logger.Error("Subscription run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Package notify tells administrators about new orders. Delivery is best
// effort and runs after the order has committed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/freshcart/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const orderTitle = "New Order Received"

// ErrFanout wraps any failure to write admin notifications. It is logged,
// never returned to the customer.
var ErrFanout = errors.New("notification fan-out failed")

type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type Store interface {
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
}

type Notifier struct {
	admins AdminDirectory
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewNotifier(admins AdminDirectory, store Store, logger *zap.Logger) *Notifier {
	return &Notifier{
		admins: admins,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Notify writes one notification per administrator. Failures are logged
// and swallowed.
func (n *Notifier) Notify(ctx context.Context, orderID string, total float64, customerName string) {
	if err := n.fanOut(ctx, orderID, total, customerName); err != nil {
		n.logger.Error("Failed to notify admins",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

func (n *Notifier) fanOut(ctx context.Context, orderID string, total float64, customerName string) error {
	admins, err := n.admins.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("%w: list admins: %w", ErrFanout, err)
	}
	if len(admins) == 0 {
		n.logger.Debug("No admins to notify", zap.String("order_id", orderID))
		return nil
	}

	createdAt := n.now()
	message := Message(orderID, total, customerName)
	batch := make([]models.Notification, 0, len(admins))
	for _, admin := range admins {
		batch = append(batch, models.Notification{
			ID:        uuid.NewString(),
			UserID:    admin.ID,
			Title:     orderTitle,
			Message:   message,
			IsRead:    false,
			Type:      models.NotificationTypeOrder,
			LinkID:    orderID,
			CreatedAt: createdAt,
		})
	}
	if err := n.store.InsertNotifications(ctx, batch); err != nil {
		return fmt.Errorf("%w: write %d notifications: %w", ErrFanout, len(batch), err)
	}
	n.logger.Info("Admins notified",
		zap.String("order_id", orderID),
		zap.Int("admins", len(batch)))
	return nil
}

// Message renders the admin notice, e.g. "Order #ORDER-0012 placed by Asha for ₹250".
func Message(orderID string, total float64, customerName string) string {
	return fmt.Sprintf("Order #%s placed by %s for ₹%s", orderID, customerName, strconv.FormatFloat(total, 'f', -1, 64))
}

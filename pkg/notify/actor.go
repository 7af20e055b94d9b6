package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// OrderPlaced asks the notification actor to fan out a new order.
type OrderPlaced struct {
	OrderID      string
	Total        float64
	CustomerName string
}

// NotificationActor serialises fan-out writes off the request path.
type NotificationActor struct {
	notifier *Notifier
	timeout  time.Duration
	logger   *zap.Logger
}

func (a *NotificationActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *OrderPlaced:
		a.logger.Debug("Fanning out order notification", zap.String("order_id", msg.OrderID))

		c, cancel := context.WithTimeout(context.Background(), a.timeout)
		a.notifier.Notify(c, msg.OrderID, msg.Total, msg.CustomerName)
		cancel()

	case *actor.Started:
		a.logger.Info("Notification actor started")

	case *actor.Stopping:
		a.logger.Info("Notification actor stopping")
	}
}

// Dispatcher hands orders to the notification actor without blocking.
type Dispatcher struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
}

func NewDispatcher(system *actor.ActorSystem, notifier *Notifier, timeout time.Duration, logger *zap.Logger) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return &NotificationActor{notifier: notifier, timeout: timeout, logger: logger.Named("notification-actor")}
	})
	pid, err := system.Root.SpawnNamed(props, "notification-actor")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn notification actor: %w", err)
	}
	return &Dispatcher{system: system, pid: pid, logger: logger}, nil
}

// Dispatch enqueues the notice and returns immediately.
func (d *Dispatcher) Dispatch(msg *OrderPlaced) {
	d.system.Root.Send(d.pid, msg)
}

// Stop drains queued notices and stops the actor.
func (d *Dispatcher) Stop() {
	if err := d.system.Root.PoisonFuture(d.pid).Wait(); err != nil {
		d.logger.Warn("Notification actor did not stop cleanly", zap.Error(err))
	}
}

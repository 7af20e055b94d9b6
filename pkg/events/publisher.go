package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer   MessageWriter
	producer string
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewPublisher(writer MessageWriter, producer string, timeout time.Duration, logger *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		writer:   writer,
		producer: producer,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// NewKafkaPublisher writes to the configured topic, keyed by order id so
// events for one order stay on one partition.
func NewKafkaPublisher(cfg *config.KafkaConfig, producer string, logger *zap.Logger) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = TopicOrderPlaced
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewPublisher(w, producer, cfg.WriteTimeout, logger)
}

// PublishOrderPlaced writes one OrderPlaced envelope.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	payload := OrderPlacedPayload{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		OrderType:   string(order.OrderType),
		Area:        order.Area,
		Items:       make([]OrderPlacedItem, 0, len(order.Items)),
		TotalAmount: order.TotalAmount,
	}
	for _, it := range order.Items {
		payload.Items = append(payload.Items, OrderPlacedItem{
			ProductID:    it.ProductID,
			VariantID:    it.VariantID,
			Qty:          it.Quantity,
			PriceAtOrder: it.PriceAtOrder,
			IsCut:        it.IsCut,
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    p.now().UTC(),
		Producer:      p.producer,
		CorrelationID: order.ID,
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderPlaced)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", EventOrderPlaced, order.ID, err)
	}
	p.logger.Debug("Order event published", zap.String("order_id", order.ID), zap.String("event_id", env.EventID))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

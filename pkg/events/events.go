// Package events publishes order lifecycle events to Kafka.
package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced = "OrderPlaced"
	TopicOrderPlaced = "order.placed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedItem struct {
	ProductID    string  `json:"product_id"`
	VariantID    string  `json:"variant_id,omitempty"`
	Qty          float64 `json:"qty"`
	PriceAtOrder float64 `json:"price_at_order"`
	IsCut        bool    `json:"is_cut,omitempty"`
}

type OrderPlacedPayload struct {
	OrderID     string            `json:"order_id"`
	CustomerID  string            `json:"customer_id"`
	OrderType   string            `json:"order_type"`
	Area        string            `json:"area"`
	Items       []OrderPlacedItem `json:"items"`
	TotalAmount float64           `json:"total_amount"`
}

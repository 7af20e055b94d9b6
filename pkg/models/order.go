package models

import "time"

type OrderStatus string

const (
	StatusPending        OrderStatus = "PENDING"
	StatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

type OrderType string

const (
	OrderTypeOneTime      OrderType = "ONE_TIME"
	OrderTypeSubscription OrderType = "SUBSCRIPTION_GENERATED"
)

// PaymentCOD is the only payment mode: cash on delivery.
const PaymentCOD = "COD"

// CartLine is one requested item as submitted by the client. Nothing in it
// besides ProductID and VariantID is trusted.
type CartLine struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Quantity  float64 `json:"quantity"`
	IsCut     bool    `json:"isCut,omitempty"`
	Name      string  `json:"name,omitempty"`
}

type DeliveryInfo struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	DeliveryPlace string `json:"deliveryPlace,omitempty"`
	Area          string `json:"area"`
	DeliveryDate  string `json:"deliveryDate,omitempty"`
	DeliverySlot  string `json:"deliverySlot,omitempty"`
}

type OrderItem struct {
	ProductID    string  `bson:"productId" json:"productId"`
	VariantID    string  `bson:"variantId,omitempty" json:"variantId,omitempty"`
	Name         string  `bson:"name" json:"name"`
	Unit         string  `bson:"unit" json:"unit"`
	Quantity     float64 `bson:"qty" json:"qty"`
	PriceAtOrder float64 `bson:"priceAtOrder" json:"priceAtOrder"`
	IsCut        bool    `bson:"isCut" json:"isCut"`
	CutCharge    float64 `bson:"cutCharge" json:"cutCharge"`
}

type Order struct {
	ID             string      `bson:"_id" json:"id"`
	CustomerID     string      `bson:"customerId" json:"customerId"`
	Name           string      `bson:"name" json:"name"`
	Phone          string      `bson:"phone" json:"phone"`
	Address        string      `bson:"address" json:"address"`
	DeliveryPlace  string      `bson:"deliveryPlace" json:"deliveryPlace"`
	Area           string      `bson:"area" json:"area"`
	DeliveryDate   string      `bson:"deliveryDate" json:"deliveryDate"`
	DeliverySlot   string      `bson:"deliverySlot,omitempty" json:"deliverySlot,omitempty"`
	Items          []OrderItem `bson:"items" json:"items"`
	TotalAmount    float64     `bson:"totalAmount" json:"totalAmount"`
	PaymentMode    string      `bson:"paymentMode" json:"paymentMode"`
	OrderType      OrderType   `bson:"orderType" json:"orderType"`
	SubscriptionID string      `bson:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	Status         OrderStatus `bson:"status" json:"status"`
	AgreedToTerms  bool        `bson:"agreedToTerms" json:"agreedToTerms"`
	IsManual       bool        `bson:"isManual,omitempty" json:"isManual,omitempty"`
	CreatedAt      time.Time   `bson:"createdAt" json:"createdAt"`
}

// Clone returns a copy with its own items slice.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp
}

package models

import "time"

type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekend   Frequency = "WEEKEND"
	FrequencyAlternate Frequency = "ALTERNATE"
	FrequencyCustom    Frequency = "CUSTOM"
)

type SubscriptionItem struct {
	ProductID string  `bson:"productId" json:"productId"`
	Quantity  float64 `bson:"qty" json:"qty"`
}

type Subscription struct {
	ID           string             `bson:"_id" json:"id"`
	CustomerID   string             `bson:"customerId" json:"customerId"`
	PlanName     string             `bson:"planName" json:"planName"`
	Items        []SubscriptionItem `bson:"items" json:"items"`
	Frequency    Frequency          `bson:"frequency" json:"frequency"`
	CustomDays   []time.Weekday     `bson:"customDays,omitempty" json:"customDays,omitempty"`
	Area         string             `bson:"area" json:"area"`
	DeliverySlot string             `bson:"deliverySlot,omitempty" json:"deliverySlot,omitempty"`
	StartDate    time.Time          `bson:"startDate" json:"startDate"`
	EndDate      *time.Time         `bson:"endDate,omitempty" json:"endDate,omitempty"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
}

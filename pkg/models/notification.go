package models

import "time"

const NotificationTypeOrder = "order"

type Notification struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	Title     string    `bson:"title" json:"title"`
	Message   string    `bson:"message" json:"message"`
	IsRead    bool      `bson:"isRead" json:"isRead"`
	Type      string    `bson:"type" json:"type"`
	LinkID    string    `bson:"linkId" json:"linkId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

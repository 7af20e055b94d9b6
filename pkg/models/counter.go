package models

// OrderCounterID is the key of the singleton order counter document.
const OrderCounterID = "main"

type Counter struct {
	ID      string `bson:"_id" json:"id"`
	LastID  int64  `bson:"lastId" json:"lastId"`
	Version int64  `bson:"version" json:"version"`
}

package models

import "gorm.io/gorm"

// EventRecord is the durable, append-only form of an Event.
type EventRecord struct {
	gorm.Model
	Kind     string `json:"kind" gorm:"index"`
	Symbol   string `json:"symbol" gorm:"index"`
	OrderID  string `json:"order_id"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Message  string `json:"message"`
	Error    string `json:"error"`
	At       int64  `json:"at"` // unix milliseconds
}

// TradeRecord is a durable record of an executed fill.
type TradeRecord struct {
	gorm.Model
	FillID    string  `json:"fill_id" gorm:"uniqueIndex"`
	OrderID   string  `json:"order_id" gorm:"index"`
	Symbol    string  `json:"symbol" gorm:"index"`
	Side      string  `json:"side"` // "BUY" or "SELL"
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Timestamp int64   `json:"timestamp"`
}

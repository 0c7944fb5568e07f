package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Payment statuses.
const (
	PaymentStatusPending   = "Pending"
	PaymentStatusCompleted = "Completed"
	PaymentStatusCancelled = "Cancelled"
)

// Payment exists only after a confirmed payment; its presence is the
// authoritative signal that the sweeper must not reclaim the booking.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	PaymentID     int64     `bun:"payment_id,pk,autoincrement" json:"payment_id"`
	BookingID     int64     `bun:"booking_id,notnull" json:"booking_id"`
	UserID        int64     `bun:"user_id,notnull" json:"user_id"`
	TransactionID string    `bun:"transaction_id,notnull" json:"transaction_id"`
	Status        string    `bun:"status,notnull,default:'Pending'" json:"status"`
	Amount        float64   `bun:"amount,notnull" json:"amount"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// PaymentRequest is the message published to the payment topic when a
// booking is created, and consumed by the payment bot.
type PaymentRequest struct {
	UserID    int64   `json:"user_id"`
	BookingID int64   `json:"booking_id"`
	Amount    float64 `json:"amount"`
}

// PaymentCallback is posted back by the payment agent after a
// successful charge.
type PaymentCallback struct {
	BookingID     int64   `json:"booking_id"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
	UserID        int64   `json:"user_id"`
}

// Receipt is the user/admin-facing payment projection for one booking.
type Receipt struct {
	UserID        int64   `json:"user_id"`
	Amount        float64 `json:"amount"`
	PaymentStatus string  `json:"payment_status"`
	TransactionID string  `json:"transaction_id"`
}

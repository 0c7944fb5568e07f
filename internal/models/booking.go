package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Booking time columns keep the textual form the front end submits.
// Two layouts occur in stored data; parsers must accept both.
const (
	BookingTimeLayout    = "2006-01-02 15:04:05"
	BookingTimeLayoutISO = "2006-01-02T15:04:05"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID int64     `bun:"booking_id,pk,autoincrement" json:"booking_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	SpotID    int64     `bun:"spot_id,notnull" json:"spot_id"`
	StartTime string    `bun:"start_time,notnull" json:"start_time"`
	EndTime   string    `bun:"end_time,notnull" json:"end_time"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ParseBookingTime accepts both stored layouts.
func ParseBookingTime(value string) (time.Time, error) {
	if t, err := time.Parse(BookingTimeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(BookingTimeLayoutISO, value)
}

// CancelledBooking is an append-only audit row; the notification flow
// consumes (reads then deletes) one entry per user.
type CancelledBooking struct {
	bun.BaseModel `bun:"table:cancelled_bookings"`

	CancellationID int64     `bun:"cancellation_id,pk,autoincrement" json:"cancellation_id"`
	BookingID      int64     `bun:"booking_id,notnull" json:"booking_id"`
	UserID         int64     `bun:"user_id,notnull" json:"user_id"`
	Reason         string    `bun:"reason,notnull" json:"reason"`
	CancelledAt    time.Time `bun:"cancelled_at,notnull,default:current_timestamp" json:"cancelled_at"`
}

// Car survives its booking: a nil BookingID means the booking was
// cancelled or reclaimed but the vehicle record is kept.
type Car struct {
	bun.BaseModel `bun:"table:cars"`

	CarID     int64     `bun:"car_id,pk,autoincrement" json:"car_id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	BookingID *int64    `bun:"booking_id" json:"booking_id"`
	CarNumber string    `bun:"car_number,notnull" json:"car_number"`
	CarBrand  string    `bun:"car_brand,notnull" json:"car_brand"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// BookingDetails is a joined projection used by account and admin views.
type BookingDetails struct {
	BookingID  int64   `json:"booking_id"`
	Address    string  `json:"address"`
	SpotNumber string  `json:"spot_number"`
	Floor      *string `json:"floor"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	CarBrand   *string `json:"car_brand"`
	CarNumber  *string `json:"car_number"`
}

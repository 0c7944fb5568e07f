package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User status values. Blacklisted users cannot log in or book.
const (
	UserStatusWhite = "White"
	UserStatusBlack = "Black"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID      int64     `bun:"user_id,pk,autoincrement" json:"user_id"`
	Username    string    `bun:"username,notnull,unique" json:"username"`
	Password    string    `bun:"password,notnull" json:"-"`
	Email       string    `bun:"email,notnull,unique" json:"email"`
	PhoneNumber string    `bun:"phone_number" json:"phone_number"`
	Status      string    `bun:"status,notnull,default:'White'" json:"status"`
	Role        string    `bun:"role,notnull,default:'User'" json:"role"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// UserProfile is the account view: user data plus active bookings.
type UserProfile struct {
	Username string           `json:"username"`
	Email    string           `json:"email"`
	Phone    string           `json:"phone"`
	Bookings []BookingDetails `json:"bookings"`
}

// CancellationNotice is a consumed-on-read admin cancellation message.
type CancellationNotice struct {
	Show    bool   `json:"show_cancellation_modal"`
	Message string `json:"cancellation_message"`
}

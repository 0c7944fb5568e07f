package models

// BookingRequest is the create-booking payload.
type BookingRequest struct {
	Address    string  `json:"address"`
	Floor      *string `json:"floor"`
	SpotNumber string  `json:"spot_number"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
}

// BookingResponse confirms a created booking.
type BookingResponse struct {
	BookingID  int64   `json:"booking_id"`
	SpotNumber string  `json:"spot_number"`
	Amount     float64 `json:"amount"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
}

// CarRequest binds a vehicle to the caller's latest booking.
type CarRequest struct {
	CarNumber string `json:"car_number"`
	CarBrand  string `json:"car_brand"`
}

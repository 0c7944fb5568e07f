package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ParkingLocation struct {
	bun.BaseModel `bun:"table:parking_locations"`

	LocationID int64     `bun:"location_id,pk,autoincrement" json:"location_id"`
	Address    string    `bun:"address,notnull" json:"address"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ParkingSpot is the unit of reservation. IsAvailable is false iff
// exactly one active booking references the spot; only the booking
// service mutates it.
type ParkingSpot struct {
	bun.BaseModel `bun:"table:parking_spots"`

	SpotID      int64     `bun:"spot_id,pk,autoincrement" json:"spot_id"`
	LocationID  int64     `bun:"location_id,notnull" json:"location_id"`
	SpotNumber  string    `bun:"spot_number,notnull" json:"spot_number"`
	Floor       *string   `bun:"floor" json:"floor"`
	IsAvailable bool      `bun:"is_available,notnull,default:true" json:"is_available"`
	Price       float64   `bun:"price,notnull" json:"price"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// SpotInfo is the public projection of one spot for the booking page.
type SpotInfo struct {
	SpotNumber  string  `json:"spot_number"`
	Floor       *string `json:"floor"`
	IsAvailable bool    `json:"is_available"`
	Price       float64 `json:"price"`
}

// LocationPrice carries the average hourly price per location.
type LocationPrice struct {
	Address        string  `json:"address"`
	PricePerHour   float64 `json:"price_per_hour"`
	PricePerMinute float64 `json:"price_per_minute"`
}

// OccupiedLocation marks a location (or one of its floors) with no free spots.
type OccupiedLocation struct {
	Address string   `json:"address"`
	Floors  []string `json:"floors,omitempty"`
}

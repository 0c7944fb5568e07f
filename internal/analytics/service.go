package analytics

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/uptrace/bun"
)

// LocationBookings counts bookings per location over a date range.
type LocationBookings struct {
	Address  string `json:"address"`
	Bookings int    `json:"bookings"`
}

// SpotUsage aggregates booking durations for one spot.
type SpotUsage struct {
	Address    string  `json:"address"`
	SpotNumber string  `json:"spot_number"`
	Bookings   int     `json:"bookings"`
	AvgHours   float64 `json:"avg_hours"`
}

// RevenueEntry is booked revenue (duration times spot price) for one
// location on one day.
type RevenueEntry struct {
	Address string  `json:"address"`
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
}

// Service computes the admin analytics views. All three views cover
// bookings whose start time falls inside [from, to]; filtering and
// aggregation happen in Go because booking times are stored as text.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

func validateRange(from, to time.Time) error {
	if from.After(to) {
		return apperr.New(apperr.Validation, "start date must not be after end date")
	}
	return nil
}

// inRange reports whether a parsed booking start lands inside the
// range. The to date is inclusive of its whole day.
func inRange(start, from, to time.Time) bool {
	return !start.Before(from) && start.Before(to.AddDate(0, 0, 1))
}

type bookingSpotRow struct {
	Address    string  `bun:"address"`
	SpotNumber string  `bun:"spot_number"`
	Price      float64 `bun:"price"`
	StartTime  string  `bun:"start_time"`
	EndTime    string  `bun:"end_time"`
}

func (s *Service) loadBookingRows(ctx context.Context) ([]bookingSpotRow, error) {
	var rows []bookingSpotRow
	err := s.db.NewSelect().
		ColumnExpr("pl.address, ps.spot_number, ps.price, b.start_time, b.end_time").
		TableExpr("bookings AS b").
		Join("JOIN parking_spots AS ps ON ps.spot_id = b.spot_id").
		Join("JOIN parking_locations AS pl ON pl.location_id = ps.location_id").
		Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.Storage, "failed to load bookings", err)
	}
	return rows, nil
}

// BookingsPerLocation counts bookings starting inside the range,
// grouped by location, busiest first.
func (s *Service) BookingsPerLocation(ctx context.Context, from, to time.Time) ([]LocationBookings, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	rows, err := s.loadBookingRows(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	order := []string{}
	for _, row := range rows {
		start, err := models.ParseBookingTime(row.StartTime)
		if err != nil || !inRange(start, from, to) {
			continue
		}
		if _, ok := counts[row.Address]; !ok {
			order = append(order, row.Address)
		}
		counts[row.Address]++
	}

	result := make([]LocationBookings, 0, len(order))
	for _, address := range order {
		result = append(result, LocationBookings{Address: address, Bookings: counts[address]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Bookings != result[j].Bookings {
			return result[i].Bookings > result[j].Bookings
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// TopSpots returns the spots with the highest average booking duration
// over the range.
func (s *Service) TopSpots(ctx context.Context, from, to time.Time, limit int) ([]SpotUsage, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.loadBookingRows(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ address, spot string }
	totals := make(map[key]*SpotUsage)
	order := []key{}
	for _, row := range rows {
		start, err := models.ParseBookingTime(row.StartTime)
		if err != nil || !inRange(start, from, to) {
			continue
		}
		end, err := models.ParseBookingTime(row.EndTime)
		if err != nil {
			continue
		}

		k := key{row.Address, row.SpotNumber}
		usage, ok := totals[k]
		if !ok {
			usage = &SpotUsage{Address: row.Address, SpotNumber: row.SpotNumber}
			totals[k] = usage
			order = append(order, k)
		}
		usage.Bookings++
		usage.AvgHours += end.Sub(start).Hours()
	}

	result := make([]SpotUsage, 0, len(order))
	for _, k := range order {
		usage := totals[k]
		usage.AvgHours = math.Round(usage.AvgHours/float64(usage.Bookings)*100) / 100
		result = append(result, *usage)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].AvgHours != result[j].AvgHours {
			return result[i].AvgHours > result[j].AvgHours
		}
		if result[i].Address != result[j].Address {
			return result[i].Address < result[j].Address
		}
		return result[i].SpotNumber < result[j].SpotNumber
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Revenue sums booked revenue per location per day over the range.
// Each booking contributes its duration in hours times the spot's
// hourly price, keyed by the booking's start date.
func (s *Service) Revenue(ctx context.Context, from, to time.Time) ([]RevenueEntry, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	rows, err := s.loadBookingRows(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ address, date string }
	totals := make(map[key]float64)
	order := []key{}
	for _, row := range rows {
		start, err := models.ParseBookingTime(row.StartTime)
		if err != nil || !inRange(start, from, to) {
			continue
		}
		end, err := models.ParseBookingTime(row.EndTime)
		if err != nil {
			continue
		}

		k := key{row.Address, start.Format("2006-01-02")}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		totals[k] += end.Sub(start).Hours() * row.Price
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].date != order[j].date {
			return order[i].date < order[j].date
		}
		return order[i].address < order[j].address
	})

	entries := make([]RevenueEntry, 0, len(order))
	for _, k := range order {
		entries = append(entries, RevenueEntry{
			Address: k.address,
			Date:    k.date,
			Revenue: math.Round(totals[k]*100) / 100,
		})
	}
	return entries, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB owns every mutation of parking_spots. The composite operations run
// inside a single transaction so the availability flag can never drift
// from the set of active bookings.
type DB struct {
	Bun *bun.DB
}

// The caller sees one Conflict message for both; the wrapped cause
// tells the two apart in logs.
var (
	errSpotMissing = errors.New("no spot matches the requested number and floor")
	errSpotTaken   = errors.New("spot is already taken")
)

// lockSpotQuery builds the spot lookup that serializes concurrent
// bookings of one spot. Row locking is a Postgres feature; the SQLite
// used in tests serializes writers on its own.
func (d *DB) lockSpotQuery(tx bun.Tx, spot *models.ParkingSpot) *bun.SelectQuery {
	q := tx.NewSelect().Model(spot)
	if d.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	return q
}

// GetLocationByAddress resolves a location by its exact address.
func (d *DB) GetLocationByAddress(ctx context.Context, address string) (*models.ParkingLocation, error) {
	var location models.ParkingLocation
	err := d.Bun.NewSelect().
		Model(&location).
		Where("address = ?", address).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "specified location not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to resolve location", err)
	}
	return &location, nil
}

// GetLocationByID resolves a location by primary key.
func (d *DB) GetLocationByID(ctx context.Context, locationID int64) (*models.ParkingLocation, error) {
	var location models.ParkingLocation
	err := d.Bun.NewSelect().
		Model(&location).
		Where("location_id = ?", locationID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("location %d not found", locationID))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load location", err)
	}
	return &location, nil
}

// CreateBooking inserts a booking and flips the spot to unavailable in
// one transaction. The availability check and the flag flip are atomic
// with respect to concurrent bookings of the same spot.
func (d *DB) CreateBooking(ctx context.Context, userID, locationID int64, spotNumber string, floor *string, startTime, endTime string) (int64, string, error) {
	var bookingID int64
	var resolvedNumber string

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var spot models.ParkingSpot
		q := d.lockSpotQuery(tx, &spot).
			Where("location_id = ?", locationID).
			Where("spot_number = ?", spotNumber)
		if floor != nil {
			q = q.Where("floor = ?", *floor)
		} else {
			q = q.Where("floor IS NULL")
		}

		err := q.Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Wrap(apperr.Conflict, fmt.Sprintf("spot %s is unavailable or does not exist", spotNumber), errSpotMissing)
		}
		if err != nil {
			return apperr.Wrap(apperr.Storage, "failed to look up spot", err)
		}
		if !spot.IsAvailable {
			return apperr.Wrap(apperr.Conflict, fmt.Sprintf("spot %s is unavailable or does not exist", spotNumber), errSpotTaken)
		}

		booking := models.Booking{
			UserID:    userID,
			SpotID:    spot.SpotID,
			StartTime: startTime,
			EndTime:   endTime,
			CreatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(&booking).Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Storage, "failed to insert booking", err)
		}

		if _, err := tx.NewUpdate().
			Model((*models.ParkingSpot)(nil)).
			Set("is_available = ?", false).
			Where("spot_id = ?", spot.SpotID).
			Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Storage, "failed to update spot availability", err)
		}

		bookingID = booking.BookingID
		resolvedNumber = spot.SpotNumber
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return bookingID, resolvedNumber, nil
}

// CancelUserBooking removes a booking at the user's request. The 24h
// policy is enforced inside the transaction; the dependent car record
// is deleted outright, which differs deliberately from the admin path.
func (d *DB) CancelUserBooking(ctx context.Context, bookingID int64, now time.Time) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var booking models.Booking
		err := tx.NewSelect().
			Model(&booking).
			Where("booking_id = ?", bookingID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, fmt.Sprintf("booking %d not found", bookingID))
		}
		if err != nil {
			return apperr.Wrap(apperr.Storage, "failed to load booking", err)
		}

		startTime, err := models.ParseBookingTime(booking.StartTime)
		if err != nil {
			return apperr.Wrap(apperr.Unexpected, "booking has an unparsable start time", err)
		}
		if now.After(startTime.Add(-24 * time.Hour)) {
			return apperr.New(apperr.PolicyViolation, "a booking can only be cancelled at least 24 hours before it starts")
		}

		if _, err := tx.NewDelete().
			Model((*models.Car)(nil)).
			Where("booking_id = ?", bookingID).
			Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Storage, "failed to delete car record", err)
		}

		if _, err := tx.NewUpdate().
			Model((*models.ParkingSpot)(nil)).
			Set("is_available = ?", true).
			Where("spot_id = ?", booking.SpotID).
			Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Storage, "failed to free spot", err)
		}

		if _, err := tx.NewDelete().
			Model((*models.Booking)(nil)).
			Where("booking_id = ?", bookingID).
			Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Storage, "failed to delete booking", err)
		}
		return nil
	})
}

// ReleaseSpot sets a spot's availability at the administrator's
// request. Freeing a spot cancels the newest booking of every user on
// it: the car reference is nulled (not deleted), an audit row is
// appended, and the booking removed. Occupying just flips the flag.
func (d *DB) ReleaseSpot(ctx context.Context, spotID int64, available bool, reason string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var spot models.ParkingSpot
		err := d.lockSpotQuery(tx, &spot).
			Where("spot_id = ?", spotID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, fmt.Sprintf("spot %d not found", spotID))
		}
		if err != nil {
			return apperr.Wrap(apperr.Storage, "failed to load spot", err)
		}

		if available {
			// Newest booking per user on this spot; older rows stay behind.
			var latest []models.Booking
			err := tx.NewSelect().
				Model(&latest).
				Where("spot_id = ?", spotID).
				Where("(user_id, created_at) IN (SELECT user_id, MAX(created_at) FROM bookings WHERE spot_id = ? GROUP BY user_id)", spotID).
				Scan(ctx)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return apperr.Wrap(apperr.Storage, "failed to collect bookings", err)
			}

			for _, booking := range latest {
				if _, err := tx.NewUpdate().
					Model((*models.Car)(nil)).
					Set("booking_id = NULL").
					Where("booking_id = ?", booking.BookingID).
					Exec(ctx); err != nil {
					return apperr.Wrap(apperr.Storage, "failed to disassociate car", err)
				}

				cancellation := models.CancelledBooking{
					BookingID:   booking.BookingID,
					UserID:      booking.UserID,
					Reason:      reason,
					CancelledAt: time.Now(),
				}
				if _, err := tx.NewInsert().Model(&cancellation).Exec(ctx); err != nil {
					return apperr.Wrap(apperr.Storage, "failed to record cancellation", err)
				}

				if _, err := tx.NewDelete().
					Model((*models.Booking)(nil)).
					Where("booking_id = ?", booking.BookingID).
					Exec(ctx); err != nil {
					return apperr.Wrap(apperr.Storage, "failed to delete booking", err)
				}
			}
		}

		if _, err := tx.NewUpdate().
			Model((*models.ParkingSpot)(nil)).
			Set("is_available = ?", available).
			Where("spot_id = ?", spotID).
			Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Storage, "failed to update spot availability", err)
		}
		return nil
	})
}

// UpdateSpotPrice sets the hourly price of a spot.
func (d *DB) UpdateSpotPrice(ctx context.Context, spotID int64, price float64) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.ParkingSpot)(nil)).
		Set("price = ?", price).
		Where("spot_id = ?", spotID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "failed to update spot price", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("spot %d not found", spotID))
	}
	return nil
}

// GetBookingByID fetches one booking.
func (d *DB) GetBookingByID(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("booking %d not found", bookingID))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load booking", err)
	}
	return &booking, nil
}

// GetSpotByID fetches one spot.
func (d *DB) GetSpotByID(ctx context.Context, spotID int64) (*models.ParkingSpot, error) {
	var spot models.ParkingSpot
	err := d.Bun.NewSelect().
		Model(&spot).
		Where("spot_id = ?", spotID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("spot %d not found", spotID))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load spot", err)
	}
	return &spot, nil
}

// ListLocations returns every parking location.
func (d *DB) ListLocations(ctx context.Context) ([]models.ParkingLocation, error) {
	var locations []models.ParkingLocation
	err := d.Bun.NewSelect().
		Model(&locations).
		Order("location_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to list locations", err)
	}
	return locations, nil
}

// ListSpotsByLocation returns every spot of one location by id.
func (d *DB) ListSpotsByLocation(ctx context.Context, locationID int64) ([]models.ParkingSpot, error) {
	var spots []models.ParkingSpot
	err := d.Bun.NewSelect().
		Model(&spots).
		Where("location_id = ?", locationID).
		Order("spot_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to list spots", err)
	}
	return spots, nil
}

// ListSpotsByAddress returns every spot of a location.
func (d *DB) ListSpotsByAddress(ctx context.Context, address string) ([]models.SpotInfo, error) {
	var spots []models.SpotInfo
	err := d.Bun.NewSelect().
		ColumnExpr("ps.spot_number, ps.floor, ps.is_available, ps.price").
		TableExpr("parking_spots AS ps").
		Join("JOIN parking_locations AS pl ON pl.location_id = ps.location_id").
		Where("pl.address = ?", address).
		Scan(ctx, &spots)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to list spots", err)
	}
	return spots, nil
}

// LocationPrices returns the average hourly price per location.
func (d *DB) LocationPrices(ctx context.Context) ([]models.LocationPrice, error) {
	type priceRow struct {
		Address  string  `bun:"address"`
		AvgPrice float64 `bun:"avg_price"`
	}
	var rows []priceRow
	err := d.Bun.NewSelect().
		ColumnExpr("pl.address").
		ColumnExpr("AVG(ps.price) AS avg_price").
		TableExpr("parking_locations AS pl").
		Join("JOIN parking_spots AS ps ON pl.location_id = ps.location_id").
		GroupExpr("pl.address").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load prices", err)
	}

	prices := make([]models.LocationPrice, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, models.LocationPrice{
			Address:        row.Address,
			PricePerHour:   row.AvgPrice,
			PricePerMinute: row.AvgPrice / 60,
		})
	}
	return prices, nil
}

// OccupiedLocations reports locations (grouped by floor) with no free
// spots, for the "everything is full" banner.
func (d *DB) OccupiedLocations(ctx context.Context) ([]models.OccupiedLocation, error) {
	type occupiedRow struct {
		Address string  `bun:"address"`
		Floor   *string `bun:"floor"`
	}
	var rows []occupiedRow
	err := d.Bun.NewSelect().
		ColumnExpr("pl.address").
		ColumnExpr("ps.floor").
		TableExpr("parking_locations AS pl").
		Join("LEFT JOIN parking_spots AS ps ON pl.location_id = ps.location_id").
		GroupExpr("pl.address, ps.floor").
		// The spot count guards against the all-NULL row the join
		// produces for a location with no spots at all.
		Having("COUNT(ps.spot_id) > 0 AND SUM(CASE WHEN ps.is_available THEN 1 ELSE 0 END) = 0").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to check occupancy", err)
	}

	byAddress := make(map[string]*models.OccupiedLocation)
	order := []string{}
	for _, row := range rows {
		entry, ok := byAddress[row.Address]
		if !ok {
			entry = &models.OccupiedLocation{Address: row.Address}
			byAddress[row.Address] = entry
			order = append(order, row.Address)
		}
		if row.Floor != nil {
			entry.Floors = append(entry.Floors, *row.Floor)
		}
	}

	occupied := make([]models.OccupiedLocation, 0, len(order))
	for _, address := range order {
		occupied = append(occupied, *byAddress[address])
	}
	return occupied, nil
}

// GetUserBookings returns the joined booking view for one user.
func (d *DB) GetUserBookings(ctx context.Context, userID int64) ([]models.BookingDetails, error) {
	type bookingRow struct {
		BookingID  int64   `bun:"booking_id"`
		Address    string  `bun:"address"`
		SpotNumber string  `bun:"spot_number"`
		Floor      *string `bun:"floor"`
		StartTime  string  `bun:"start_time"`
		EndTime    string  `bun:"end_time"`
	}
	var rows []bookingRow
	err := d.Bun.NewSelect().
		ColumnExpr("b.booking_id, pl.address, ps.spot_number, ps.floor, b.start_time, b.end_time").
		TableExpr("bookings AS b").
		Join("JOIN parking_spots AS ps ON ps.spot_id = b.spot_id").
		Join("JOIN parking_locations AS pl ON pl.location_id = ps.location_id").
		Where("b.user_id = ?", userID).
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load bookings", err)
	}
	if len(rows) == 0 {
		return []models.BookingDetails{}, nil
	}

	bookingIDs := make([]int64, len(rows))
	for i, row := range rows {
		bookingIDs[i] = row.BookingID
	}

	var cars []models.Car
	err = d.Bun.NewSelect().
		Model(&cars).
		Where("booking_id IN (?)", bun.In(bookingIDs)).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.Storage, "failed to load cars", err)
	}

	carsByBooking := make(map[int64]models.Car)
	for _, car := range cars {
		if car.BookingID != nil {
			carsByBooking[*car.BookingID] = car
		}
	}

	details := make([]models.BookingDetails, 0, len(rows))
	for _, row := range rows {
		detail := models.BookingDetails{
			BookingID:  row.BookingID,
			Address:    row.Address,
			SpotNumber: row.SpotNumber,
			Floor:      row.Floor,
			StartTime:  row.StartTime,
			EndTime:    row.EndTime,
		}
		if car, ok := carsByBooking[row.BookingID]; ok {
			brand, number := car.CarBrand, car.CarNumber
			detail.CarBrand = &brand
			detail.CarNumber = &number
		}
		details = append(details, detail)
	}
	return details, nil
}

// LatestBookingID returns the most recently created booking of a user.
func (d *DB) LatestBookingID(ctx context.Context, userID int64) (int64, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, booking_id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.New(apperr.NotFound, "no booking found for user")
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Storage, "failed to find latest booking", err)
	}
	return booking.BookingID, nil
}

// CreateCar stores a vehicle bound to a booking.
func (d *DB) CreateCar(ctx context.Context, car *models.Car) error {
	if _, err := d.Bun.NewInsert().Model(car).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Storage, "failed to save car", err)
	}
	return nil
}

// ConsumeCancellationNotice reads the first pending cancellation notice
// for a user and deletes all of them. Read-then-delete keeps the modal
// one-shot.
func (d *DB) ConsumeCancellationNotice(ctx context.Context, userID int64) (*models.CancellationNotice, error) {
	var cancellations []models.CancelledBooking
	err := d.Bun.NewSelect().
		Model(&cancellations).
		Where("user_id = ?", userID).
		Order("cancelled_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.Storage, "failed to check cancellations", err)
	}
	if len(cancellations) == 0 {
		return &models.CancellationNotice{}, nil
	}

	if _, err := d.Bun.NewDelete().
		Model((*models.CancelledBooking)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to consume cancellations", err)
	}

	return &models.CancellationNotice{
		Show:    true,
		Message: cancellations[0].Reason,
	}, nil
}

// CancelledBookingsForUser lists audit rows (used by tests and admin views).
func (d *DB) CancelledBookingsForUser(ctx context.Context, userID int64) ([]models.CancelledBooking, error) {
	var cancellations []models.CancelledBooking
	err := d.Bun.NewSelect().
		Model(&cancellations).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to list cancellations", err)
	}
	return cancellations, nil
}

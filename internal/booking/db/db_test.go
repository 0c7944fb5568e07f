package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/booking/db"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.ParkingLocation)(nil),
		(*models.ParkingSpot)(nil),
		(*models.Booking)(nil),
		(*models.CancelledBooking)(nil),
		(*models.Car)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func seedLocation(t *testing.T, bunDB *bun.DB, address string) models.ParkingLocation {
	location := models.ParkingLocation{Address: address, CreatedAt: time.Now()}
	_, err := bunDB.NewInsert().Model(&location).Exec(context.Background())
	require.NoError(t, err)
	return location
}

func seedSpot(t *testing.T, bunDB *bun.DB, locationID int64, number string, floor *string, price float64) models.ParkingSpot {
	spot := models.ParkingSpot{
		LocationID:  locationID,
		SpotNumber:  number,
		Floor:       floor,
		IsAvailable: true,
		Price:       price,
		CreatedAt:   time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&spot).Exec(context.Background())
	require.NoError(t, err)
	return spot
}

func bookingTime(t time.Time) string {
	return t.Format(models.BookingTimeLayout)
}

func TestCreateBookingReservesSpot(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	spot := seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	start := time.Now().Add(48 * time.Hour)
	bookingID, spotNumber, err := bookingDB.CreateBooking(ctx, 1, location.LocationID, "A1", nil,
		bookingTime(start), bookingTime(start.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.NotZero(t, bookingID)
	assert.Equal(t, "A1", spotNumber)

	var stored models.ParkingSpot
	err = bunDB.NewSelect().Model(&stored).Where("spot_id = ?", spot.SpotID).Scan(ctx)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)
}

func TestCreateBookingConflictsWhenTaken(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	start := time.Now().Add(48 * time.Hour)
	_, _, err := bookingDB.CreateBooking(ctx, 1, location.LocationID, "A1", nil,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.NoError(t, err)

	// Second booking of the same spot must fail the same way as a
	// booking of a spot that does not exist.
	_, _, err = bookingDB.CreateBooking(ctx, 2, location.LocationID, "A1", nil,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	takenMessage := apperr.UserMessage(err)
	assert.Contains(t, err.Error(), "already taken")

	_, _, err = bookingDB.CreateBooking(ctx, 2, location.LocationID, "Z9", nil,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "no spot matches")

	// The two causes diverge only inside the error chain for logs; the
	// caller-visible message stays identical.
	assert.Equal(t, takenMessage, apperr.UserMessage(err))
}

func TestOccupiedLocationsSkipsLocationsWithoutSpots(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	full := seedLocation(t, bunDB, "Lenina Ave 10")
	spot := seedSpot(t, bunDB, full.LocationID, "A1", nil, 120)
	_, err := bunDB.NewUpdate().
		Model((*models.ParkingSpot)(nil)).
		Set("is_available = ?", false).
		Where("spot_id = ?", spot.SpotID).
		Exec(ctx)
	require.NoError(t, err)

	// No spots registered yet, so nothing there can be occupied.
	seedLocation(t, bunDB, "Gagarina St 25")

	occupied, err := bookingDB.OccupiedLocations(ctx)
	require.NoError(t, err)
	require.Len(t, occupied, 1)
	assert.Equal(t, "Lenina Ave 10", occupied[0].Address)
}

func TestCreateBookingMatchesFloor(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Gagarina St 25")
	floor1, floor2 := "1", "2"
	seedSpot(t, bunDB, location.LocationID, "B1", &floor1, 100)
	spot2 := seedSpot(t, bunDB, location.LocationID, "B1", &floor2, 90)

	start := time.Now().Add(48 * time.Hour)
	_, _, err := bookingDB.CreateBooking(ctx, 1, location.LocationID, "B1", &floor2,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.NoError(t, err)

	var stored models.ParkingSpot
	err = bunDB.NewSelect().Model(&stored).Where("spot_id = ?", spot2.SpotID).Scan(ctx)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)

	// Floor 1 copy of B1 is untouched.
	err = bunDB.NewSelect().Model(&stored).Where("spot_number = ? AND floor = ?", "B1", floor1).Scan(ctx)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)
}

func TestCancelUserBookingWindow(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	now := time.Now()
	start := now.Add(23 * time.Hour)
	bookingID, _, err := bookingDB.CreateBooking(ctx, 1, location.LocationID, "A1", nil,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.NoError(t, err)

	err = bookingDB.CancelUserBooking(ctx, bookingID, now)
	require.Error(t, err)
	assert.Equal(t, apperr.PolicyViolation, apperr.KindOf(err))

	// Just outside the window cancellation goes through.
	err = bookingDB.CancelUserBooking(ctx, bookingID, start.Add(-24*time.Hour-time.Second))
	require.NoError(t, err)

	count, err := bunDB.NewSelect().Model((*models.Booking)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	var spot models.ParkingSpot
	err = bunDB.NewSelect().Model(&spot).Where("spot_number = ?", "A1").Scan(ctx)
	require.NoError(t, err)
	assert.True(t, spot.IsAvailable)
}

func TestCancelUserBookingDeletesCar(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	start := time.Now().Add(72 * time.Hour)
	bookingID, _, err := bookingDB.CreateBooking(ctx, 1, location.LocationID, "A1", nil,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.NoError(t, err)

	car := models.Car{UserID: 1, BookingID: &bookingID, CarNumber: "A123BC", CarBrand: "Lada", CreatedAt: time.Now()}
	require.NoError(t, bookingDB.CreateCar(ctx, &car))

	require.NoError(t, bookingDB.CancelUserBooking(ctx, bookingID, time.Now()))

	count, err := bunDB.NewSelect().Model((*models.Car)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "user cancellation removes the car record")
}

func TestReleaseSpotCancelsNewestBookingPerUser(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	spot := seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	// Two bookings by the same user on one spot, one older, one newer.
	older := models.Booking{
		UserID: 7, SpotID: spot.SpotID,
		StartTime: bookingTime(time.Now().Add(24 * time.Hour)),
		EndTime:   bookingTime(time.Now().Add(26 * time.Hour)),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	_, err := bunDB.NewInsert().Model(&older).Exec(ctx)
	require.NoError(t, err)

	newer := models.Booking{
		UserID: 7, SpotID: spot.SpotID,
		StartTime: bookingTime(time.Now().Add(48 * time.Hour)),
		EndTime:   bookingTime(time.Now().Add(50 * time.Hour)),
		CreatedAt: time.Now(),
	}
	_, err = bunDB.NewInsert().Model(&newer).Exec(ctx)
	require.NoError(t, err)

	car := models.Car{UserID: 7, BookingID: &newer.BookingID, CarNumber: "A123BC", CarBrand: "Lada", CreatedAt: time.Now()}
	require.NoError(t, bookingDB.CreateCar(ctx, &car))

	require.NoError(t, bookingDB.ReleaseSpot(ctx, spot.SpotID, true, "cancelled by administrator"))

	// Only the newest booking is cancelled; the older row survives.
	var remaining []models.Booking
	err = bunDB.NewSelect().Model(&remaining).Scan(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, older.BookingID, remaining[0].BookingID)

	// The car keeps existing but loses its booking reference.
	var storedCar models.Car
	err = bunDB.NewSelect().Model(&storedCar).Where("car_id = ?", car.CarID).Scan(ctx)
	require.NoError(t, err)
	assert.Nil(t, storedCar.BookingID)

	cancellations, err := bookingDB.CancelledBookingsForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, cancellations, 1)
	assert.Equal(t, newer.BookingID, cancellations[0].BookingID)

	var storedSpot models.ParkingSpot
	err = bunDB.NewSelect().Model(&storedSpot).Where("spot_id = ?", spot.SpotID).Scan(ctx)
	require.NoError(t, err)
	assert.True(t, storedSpot.IsAvailable)
}

func TestReleaseSpotOccupyOnlyFlipsFlag(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	spot := seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	start := time.Now().Add(48 * time.Hour)
	bookingID, _, err := bookingDB.CreateBooking(ctx, 1, location.LocationID, "A1", nil,
		bookingTime(start), bookingTime(start.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, bookingDB.ReleaseSpot(ctx, spot.SpotID, false, "cancelled by administrator"))

	// Marking a spot unavailable leaves bookings alone.
	count, err := bunDB.NewSelect().Model((*models.Booking)(nil)).Where("booking_id = ?", bookingID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateSpotPriceNotFound(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	err := bookingDB.UpdateSpotPrice(context.Background(), 999, 50)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestConsumeCancellationNoticeIsOneShot(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	cancellation := models.CancelledBooking{
		BookingID: 1, UserID: 5,
		Reason:      "cancelled by administrator",
		CancelledAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&cancellation).Exec(ctx)
	require.NoError(t, err)

	notice, err := bookingDB.ConsumeCancellationNotice(ctx, 5)
	require.NoError(t, err)
	assert.True(t, notice.Show)
	assert.Equal(t, "cancelled by administrator", notice.Message)

	notice, err = bookingDB.ConsumeCancellationNotice(ctx, 5)
	require.NoError(t, err)
	assert.False(t, notice.Show)
}

func TestLatestBookingID(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	location := seedLocation(t, bunDB, "Lenina Ave 10")
	spot := seedSpot(t, bunDB, location.LocationID, "A1", nil, 120)

	first := models.Booking{
		UserID: 3, SpotID: spot.SpotID,
		StartTime: bookingTime(time.Now().Add(24 * time.Hour)),
		EndTime:   bookingTime(time.Now().Add(25 * time.Hour)),
		CreatedAt: time.Now().Add(-time.Hour),
	}
	_, err := bunDB.NewInsert().Model(&first).Exec(ctx)
	require.NoError(t, err)

	second := models.Booking{
		UserID: 3, SpotID: spot.SpotID,
		StartTime: bookingTime(time.Now().Add(48 * time.Hour)),
		EndTime:   bookingTime(time.Now().Add(49 * time.Hour)),
		CreatedAt: time.Now(),
	}
	_, err = bunDB.NewInsert().Model(&second).Exec(ctx)
	require.NoError(t, err)

	latest, err := bookingDB.LatestBookingID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, second.BookingID, latest)

	_, err = bookingDB.LatestBookingID(ctx, 99)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

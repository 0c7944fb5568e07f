package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Refret28/microservice-booking/internal/analytics"
	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
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
		(*models.Payment)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}
	return bunDB
}

func seed(t *testing.T, bunDB *bun.DB, model interface{}) {
	_, err := bunDB.NewInsert().Model(model).Exec(context.Background())
	require.NoError(t, err)
}

func window(start time.Time, hours int) (string, string) {
	return start.Format(models.BookingTimeLayout), start.Add(time.Duration(hours) * time.Hour).Format(models.BookingTimeLayout)
}

var (
	rangeFrom = time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	inWindow  = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
)

func TestBookingsPerLocation(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingLocation{LocationID: 2, Address: "Gagarina St 25", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", IsAvailable: false, Price: 100, CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 2, LocationID: 1, SpotNumber: "A2", IsAvailable: false, Price: 100, CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 3, LocationID: 2, SpotNumber: "B1", IsAvailable: false, Price: 100, CreatedAt: time.Now()})

	for i, spotID := range []int64{1, 2} {
		start, end := window(inWindow.Add(time.Duration(i)*time.Hour), 2)
		seed(t, bunDB, &models.Booking{UserID: 1, SpotID: spotID, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	}
	start, end := window(inWindow, 2)
	seed(t, bunDB, &models.Booking{UserID: 2, SpotID: 3, StartTime: start, EndTime: end, CreatedAt: time.Now()})

	rows, err := service.BookingsPerLocation(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lenina Ave 10", rows[0].Address)
	assert.Equal(t, 2, rows[0].Bookings)
	assert.Equal(t, "Gagarina St 25", rows[1].Address)
	assert.Equal(t, 1, rows[1].Bookings)
}

func TestBookingsPerLocationFiltersByStartDate(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", Price: 100, CreatedAt: time.Now()})

	start, end := window(inWindow, 2)
	seed(t, bunDB, &models.Booking{UserID: 1, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	// Starts the day after the range ends.
	start, end = window(rangeTo.AddDate(0, 0, 1), 2)
	seed(t, bunDB, &models.Booking{UserID: 2, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})

	rows, err := service.BookingsPerLocation(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Bookings)
}

func TestTopSpotsOrdersByAverageDuration(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", Price: 100, CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 2, LocationID: 1, SpotNumber: "A2", Price: 100, CreatedAt: time.Now()})

	// A1: 2h and 4h bookings, average 3h. A2: one 1h booking.
	start, end := window(inWindow, 2)
	seed(t, bunDB, &models.Booking{UserID: 1, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	start, end = window(inWindow.Add(6*time.Hour), 4)
	seed(t, bunDB, &models.Booking{UserID: 2, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	start, end = window(inWindow, 1)
	seed(t, bunDB, &models.Booking{UserID: 1, SpotID: 2, StartTime: start, EndTime: end, CreatedAt: time.Now()})

	rows, err := service.TopSpots(context.Background(), rangeFrom, rangeTo, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0].SpotNumber)
	assert.Equal(t, 3.0, rows[0].AvgHours)
	assert.Equal(t, 2, rows[0].Bookings)
	assert.Equal(t, "A2", rows[1].SpotNumber)
	assert.Equal(t, 1.0, rows[1].AvgHours)
}

func TestTopSpotsIgnoresBookingsOutsideRange(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", Price: 100, CreatedAt: time.Now()})

	// A long booking outside the range must not skew the average.
	start, end := window(rangeFrom.AddDate(0, 0, -5), 10)
	seed(t, bunDB, &models.Booking{UserID: 1, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	start, end = window(inWindow, 2)
	seed(t, bunDB, &models.Booking{UserID: 2, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})

	rows, err := service.TopSpots(context.Background(), rangeFrom, rangeTo, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Bookings)
	assert.Equal(t, 2.0, rows[0].AvgHours)
}

func TestTopSpotsIgnoresUnparsableRows(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", Price: 100, CreatedAt: time.Now()})
	seed(t, bunDB, &models.Booking{UserID: 1, SpotID: 1, StartTime: "garbage", EndTime: "garbage", CreatedAt: time.Now()})

	rows, err := service.TopSpots(context.Background(), rangeFrom, rangeTo, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRevenueCountsUnpaidBookings(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", Price: 100, CreatedAt: time.Now()})

	// One 2h booking at 100/h, no payment row yet.
	start, end := window(inWindow, 2)
	seed(t, bunDB, &models.Booking{BookingID: 1, UserID: 1, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})

	rows, err := service.Revenue(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lenina Ave 10", rows[0].Address)
	assert.Equal(t, "2026-08-20", rows[0].Date)
	assert.Equal(t, 200.0, rows[0].Revenue)
}

func TestRevenueGroupsByLocationAndStartDay(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	seed(t, bunDB, &models.ParkingLocation{LocationID: 1, Address: "Lenina Ave 10", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingLocation{LocationID: 2, Address: "Gagarina St 25", CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 1, LocationID: 1, SpotNumber: "A1", Price: 100, CreatedAt: time.Now()})
	seed(t, bunDB, &models.ParkingSpot{SpotID: 2, LocationID: 2, SpotNumber: "B1", Price: 50, CreatedAt: time.Now()})

	// Two bookings on the same day and spot sum together.
	start, end := window(inWindow, 2)
	seed(t, bunDB, &models.Booking{BookingID: 1, UserID: 1, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	start, end = window(inWindow.Add(4*time.Hour), 1)
	seed(t, bunDB, &models.Booking{BookingID: 2, UserID: 2, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	// A different location the day before.
	start, end = window(inWindow.AddDate(0, 0, -1), 3)
	seed(t, bunDB, &models.Booking{BookingID: 3, UserID: 3, SpotID: 2, StartTime: start, EndTime: end, CreatedAt: time.Now()})
	// Outside the range entirely.
	start, end = window(rangeTo.AddDate(0, 0, 2), 8)
	seed(t, bunDB, &models.Booking{BookingID: 4, UserID: 4, SpotID: 1, StartTime: start, EndTime: end, CreatedAt: time.Now()})

	rows, err := service.Revenue(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Gagarina St 25", rows[0].Address)
	assert.Equal(t, "2026-08-19", rows[0].Date)
	assert.Equal(t, 150.0, rows[0].Revenue)
	assert.Equal(t, "Lenina Ave 10", rows[1].Address)
	assert.Equal(t, "2026-08-20", rows[1].Date)
	assert.Equal(t, 300.0, rows[1].Revenue)
}

func TestRevenueRejectsInvertedRange(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	service := analytics.NewService(bunDB)

	_, err := service.Revenue(context.Background(), rangeTo, rangeFrom)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

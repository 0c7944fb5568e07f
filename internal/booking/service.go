package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"
)

// DBLayer is the storage surface the booking service needs. All spot
// availability mutations in the system go through it.
type DBLayer interface {
	GetLocationByAddress(ctx context.Context, address string) (*models.ParkingLocation, error)
	CreateBooking(ctx context.Context, userID, locationID int64, spotNumber string, floor *string, startTime, endTime string) (int64, string, error)
	CancelUserBooking(ctx context.Context, bookingID int64, now time.Time) error
	ReleaseSpot(ctx context.Context, spotID int64, available bool, reason string) error
	UpdateSpotPrice(ctx context.Context, spotID int64, price float64) error
	ListSpotsByAddress(ctx context.Context, address string) ([]models.SpotInfo, error)
	ListLocations(ctx context.Context) ([]models.ParkingLocation, error)
	ListSpotsByLocation(ctx context.Context, locationID int64) ([]models.ParkingSpot, error)
	LocationPrices(ctx context.Context) ([]models.LocationPrice, error)
	OccupiedLocations(ctx context.Context) ([]models.OccupiedLocation, error)
	GetBookingByID(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetSpotByID(ctx context.Context, spotID int64) (*models.ParkingSpot, error)
	GetLocationByID(ctx context.Context, locationID int64) (*models.ParkingLocation, error)
	GetUserBookings(ctx context.Context, userID int64) ([]models.BookingDetails, error)
	LatestBookingID(ctx context.Context, userID int64) (int64, error)
	CreateCar(ctx context.Context, car *models.Car) error
	ConsumeCancellationNotice(ctx context.Context, userID int64) (*models.CancellationNotice, error)
}

// KafkaPublisher publishes payment requests for freshly created bookings.
type KafkaPublisher interface {
	Publish(topic, key string, value []byte) error
}

const adminCancellationReason = "Your booking was cancelled by the administrator. Choose another spot or contact support."

type Service struct {
	db           DBLayer
	publisher    KafkaPublisher
	paymentTopic string
	log          *logger.Logger
}

func NewService(db DBLayer, publisher KafkaPublisher, paymentTopic string, log *logger.Logger) *Service {
	return &Service{
		db:           db,
		publisher:    publisher,
		paymentTopic: paymentTopic,
		log:          log,
	}
}

// CreateBooking reserves a spot for the user and announces the expected
// payment on the payment topic. The reservation commits first; a
// publish failure is logged and the booking stands (the sweeper
// reclaims it if no payment ever arrives).
func (s *Service) CreateBooking(ctx context.Context, userID int64, req models.BookingRequest) (*models.BookingResponse, error) {
	if req.Address == "" || req.SpotNumber == "" {
		return nil, apperr.New(apperr.Validation, "address and spot number are required")
	}

	startTime, err := models.ParseBookingTime(req.StartTime)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "start time has an invalid format")
	}
	endTime, err := models.ParseBookingTime(req.EndTime)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "end time has an invalid format")
	}
	if !endTime.After(startTime) {
		return nil, apperr.New(apperr.Validation, "end time must be after start time")
	}

	location, err := s.db.GetLocationByAddress(ctx, req.Address)
	if err != nil {
		return nil, err
	}

	floor, err := s.resolveFloor(ctx, req.Address, req.Floor)
	if err != nil {
		return nil, err
	}

	amount, err := s.computeAmount(ctx, req.Address, startTime, endTime)
	if err != nil {
		return nil, err
	}

	bookingID, spotNumber, err := s.db.CreateBooking(ctx, userID, location.LocationID, req.SpotNumber, floor, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	s.log.LogBooking("CREATE", bookingID, fmt.Sprintf("user %d booked spot %s at %s", userID, spotNumber, req.Address))

	s.publishPaymentRequest(userID, bookingID, amount)

	return &models.BookingResponse{
		BookingID:  bookingID,
		SpotNumber: spotNumber,
		Amount:     amount,
	}, nil
}

// resolveFloor drops the floor filter for locations whose spots carry
// no floor at all, so a client-sent floor does not misaddress a flat lot.
func (s *Service) resolveFloor(ctx context.Context, address string, floor *string) (*string, error) {
	spots, err := s.db.ListSpotsByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	hasFloors := false
	for _, spot := range spots {
		if spot.Floor != nil {
			hasFloors = true
			break
		}
	}
	if !hasFloors {
		return nil, nil
	}
	return floor, nil
}

// computeAmount prices a booking: duration in minutes times the
// location's average hourly price divided by 60, rounded to 2 decimals.
func (s *Service) computeAmount(ctx context.Context, address string, startTime, endTime time.Time) (float64, error) {
	prices, err := s.db.LocationPrices(ctx)
	if err != nil {
		return 0, err
	}
	for _, price := range prices {
		if price.Address == address {
			minutes := endTime.Sub(startTime).Minutes()
			return math.Round(minutes*price.PricePerMinute*100) / 100, nil
		}
	}
	return 0, apperr.New(apperr.NotFound, "no price information for location")
}

func (s *Service) publishPaymentRequest(userID, bookingID int64, amount float64) {
	request := models.PaymentRequest{
		UserID:    userID,
		BookingID: bookingID,
		Amount:    amount,
	}
	value, err := json.Marshal(request)
	if err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("failed to encode payment request for booking %d: %v", bookingID, err))
		return
	}
	if err := s.publisher.Publish(s.paymentTopic, strconv.FormatInt(userID, 10), value); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("failed to publish payment request for booking %d: %v", bookingID, err))
		return
	}
	s.log.LogKafka("PUBLISH", s.paymentTopic, fmt.Sprintf("payment request for booking %d, amount %.2f", bookingID, amount))
}

// CancelBooking cancels the user's own booking, subject to the 24h window.
func (s *Service) CancelBooking(ctx context.Context, bookingID int64) error {
	if err := s.db.CancelUserBooking(ctx, bookingID, time.Now()); err != nil {
		return err
	}
	s.log.LogBooking("CANCEL", bookingID, "cancelled by user")
	return nil
}

// ReleaseSpot is the admin override of a spot's availability. Freeing a
// spot force-cancels the bookings holding it.
func (s *Service) ReleaseSpot(ctx context.Context, spotID int64, available bool) error {
	if err := s.db.ReleaseSpot(ctx, spotID, available, adminCancellationReason); err != nil {
		return err
	}
	s.log.Info("ADMIN", fmt.Sprintf("spot %d availability set to %t", spotID, available))
	return nil
}

// UpdateSpotPrice sets a spot's hourly price; negative prices are rejected.
func (s *Service) UpdateSpotPrice(ctx context.Context, spotID int64, price float64) error {
	if price < 0 {
		return apperr.New(apperr.Validation, "price must not be negative")
	}
	if err := s.db.UpdateSpotPrice(ctx, spotID, price); err != nil {
		return err
	}
	s.log.Info("ADMIN", fmt.Sprintf("spot %d price set to %.2f", spotID, price))
	return nil
}

// ListSpots returns the spots of one location.
func (s *Service) ListSpots(ctx context.Context, address string) ([]models.SpotInfo, error) {
	if address == "" {
		return nil, apperr.New(apperr.Validation, "address is required")
	}
	return s.db.ListSpotsByAddress(ctx, address)
}

// LocationPrices returns the average hourly price per location.
func (s *Service) LocationPrices(ctx context.Context) ([]models.LocationPrice, error) {
	return s.db.LocationPrices(ctx)
}

// Locations lists all locations, admin view.
func (s *Service) Locations(ctx context.Context) ([]models.ParkingLocation, error) {
	return s.db.ListLocations(ctx)
}

// LocationSpots lists every spot of one location, admin view.
func (s *Service) LocationSpots(ctx context.Context, locationID int64) ([]models.ParkingSpot, error) {
	if _, err := s.db.GetLocationByID(ctx, locationID); err != nil {
		return nil, err
	}
	return s.db.ListSpotsByLocation(ctx, locationID)
}

// OccupiedLocations lists locations with no free spots.
func (s *Service) OccupiedLocations(ctx context.Context) ([]models.OccupiedLocation, error) {
	return s.db.OccupiedLocations(ctx)
}

// UserBookings returns the caller's bookings with car details attached.
func (s *Service) UserBookings(ctx context.Context, userID int64) ([]models.BookingDetails, error) {
	return s.db.GetUserBookings(ctx, userID)
}

// AddCar binds a vehicle to the caller's most recent booking.
func (s *Service) AddCar(ctx context.Context, userID int64, req models.CarRequest) (*models.Car, error) {
	if req.CarNumber == "" || req.CarBrand == "" {
		return nil, apperr.New(apperr.Validation, "car number and brand are required")
	}

	bookingID, err := s.db.LatestBookingID(ctx, userID)
	if err != nil {
		return nil, err
	}

	car := &models.Car{
		UserID:    userID,
		BookingID: &bookingID,
		CarNumber: req.CarNumber,
		CarBrand:  req.CarBrand,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateCar(ctx, car); err != nil {
		return nil, err
	}
	s.log.LogBooking("CAR", bookingID, fmt.Sprintf("car %s bound by user %d", req.CarNumber, userID))
	return car, nil
}

// GetBooking fetches one booking, for ownership checks at the API edge.
func (s *Service) GetBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.db.GetBookingByID(ctx, bookingID)
}

// PaymentDetails recomputes the amount owed for an existing booking, so
// a payment link can be regenerated after the original message is lost.
func (s *Service) PaymentDetails(ctx context.Context, bookingID int64) (*models.PaymentRequest, error) {
	booking, err := s.db.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	spot, err := s.db.GetSpotByID(ctx, booking.SpotID)
	if err != nil {
		return nil, err
	}
	location, err := s.db.GetLocationByID(ctx, spot.LocationID)
	if err != nil {
		return nil, err
	}

	startTime, err := models.ParseBookingTime(booking.StartTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, "booking has an unparsable start time", err)
	}
	endTime, err := models.ParseBookingTime(booking.EndTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, "booking has an unparsable end time", err)
	}

	amount, err := s.computeAmount(ctx, location.Address, startTime, endTime)
	if err != nil {
		return nil, err
	}
	return &models.PaymentRequest{
		UserID:    booking.UserID,
		BookingID: booking.BookingID,
		Amount:    amount,
	}, nil
}

// CancellationNotice pops the pending admin-cancellation message for a user.
func (s *Service) CancellationNotice(ctx context.Context, userID int64) (*models.CancellationNotice, error) {
	return s.db.ConsumeCancellationNotice(ctx, userID)
}

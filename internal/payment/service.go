package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"
)

// DBLayer is the payment ledger surface.
type DBLayer interface {
	SavePayment(ctx context.Context, payment *models.Payment) error
	GetByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error)
	HasCompletedPayment(ctx context.Context, bookingID int64) (bool, error)
	SetStatusByBookingID(ctx context.Context, bookingID int64, status string) error
}

type Service struct {
	db  DBLayer
	log *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{db: db, log: log}
}

// Confirm records a successful charge reported by the payment agent.
// This is the only writer of payment rows.
func (s *Service) Confirm(ctx context.Context, callback models.PaymentCallback) error {
	if callback.BookingID <= 0 || callback.UserID <= 0 {
		return apperr.New(apperr.Validation, "booking_id and user_id are required")
	}
	if callback.TransactionID == "" {
		return apperr.New(apperr.Validation, "transaction_id is required")
	}
	if callback.Amount <= 0 {
		return apperr.New(apperr.Validation, "amount must be positive")
	}

	payment := &models.Payment{
		BookingID:     callback.BookingID,
		UserID:        callback.UserID,
		TransactionID: callback.TransactionID,
		Status:        models.PaymentStatusCompleted,
		Amount:        callback.Amount,
		CreatedAt:     time.Now(),
	}
	if err := s.db.SavePayment(ctx, payment); err != nil {
		return err
	}
	s.log.Info("PAYMENT", fmt.Sprintf("payment confirmed for booking %d, amount %.2f, tx %s", callback.BookingID, callback.Amount, callback.TransactionID))
	return nil
}

// Receipt returns the payment projection for one booking.
func (s *Service) Receipt(ctx context.Context, bookingID int64) (*models.Receipt, error) {
	payment, err := s.db.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &models.Receipt{
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		PaymentStatus: payment.Status,
		TransactionID: payment.TransactionID,
	}, nil
}

// CancelByAdmin marks a payment cancelled in place. The row keeps its
// booking reference so the reversal stays auditable.
func (s *Service) CancelByAdmin(ctx context.Context, bookingID int64) error {
	if err := s.db.SetStatusByBookingID(ctx, bookingID, models.PaymentStatusCancelled); err != nil {
		return err
	}
	s.log.Info("ADMIN", fmt.Sprintf("payment for booking %d cancelled", bookingID))
	return nil
}

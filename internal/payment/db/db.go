package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// SavePayment records a confirmed payment. Rows exist only for
// completed charges; a pending payment is represented by no row.
func (d *DB) SavePayment(ctx context.Context, payment *models.Payment) error {
	if _, err := d.Bun.NewInsert().Model(payment).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Storage, "failed to save payment", err)
	}
	return nil
}

// GetByBookingID returns the payment for one booking.
func (d *DB) GetByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no payment found for booking %d", bookingID))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load payment", err)
	}
	return &payment, nil
}

// HasCompletedPayment reports whether a completed payment row exists
// for the booking. The sweeper keys off this before reclaiming.
func (d *DB) HasCompletedPayment(ctx context.Context, bookingID int64) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Payment)(nil)).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.PaymentStatusCompleted).
		Exists(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Storage, "failed to check payment", err)
	}
	return exists, nil
}

// SetStatusByBookingID updates the payment status in place.
func (d *DB) SetStatusByBookingID(ctx context.Context, bookingID int64, status string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "failed to update payment status", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("no payment found for booking %d", bookingID))
	}
	return nil
}

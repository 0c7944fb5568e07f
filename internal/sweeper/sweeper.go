package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/uptrace/bun"
)

// PaymentChecker answers whether a booking has a completed payment.
type PaymentChecker interface {
	HasCompletedPayment(ctx context.Context, bookingID int64) (bool, error)
}

// Sweeper reclaims spots held by bookings that either never got paid
// within the grace period or whose time window has ended. Each pass
// runs in its own transaction; failures are logged, never propagated,
// and the next tick retries.
type Sweeper struct {
	db       *bun.DB
	payments PaymentChecker
	interval time.Duration
	grace    time.Duration
	log      *logger.Logger
}

func New(db *bun.DB, payments PaymentChecker, interval, grace time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		db:       db,
		payments: payments,
		interval: interval,
		grace:    grace,
		log:      log,
	}
}

// Run ticks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.LogSweep("START", fmt.Sprintf("sweeping every %s, payment grace %s", s.interval, s.grace))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.LogSweep("STOP", "sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs both reclamation passes once.
func (s *Sweeper) Sweep(ctx context.Context) {
	if err := s.reclaimUnpaid(ctx, time.Now()); err != nil {
		s.log.Error("SWEEPER", fmt.Sprintf("payment pass failed: %v", err))
	}
	if err := s.reclaimExpired(ctx, time.Now()); err != nil {
		s.log.Error("SWEEPER", fmt.Sprintf("expiry pass failed: %v", err))
	}
}

// reclaimUnpaid removes bookings older than the grace period that still
// have no completed payment. The payment check happens inside the
// transaction so a payment landing mid-pass is honored.
func (s *Sweeper) reclaimUnpaid(ctx context.Context, now time.Time) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var candidates []models.Booking
		err := tx.NewSelect().
			Model(&candidates).
			Where("created_at <= ?", now.Add(-s.grace)).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		for _, booking := range candidates {
			paid, err := s.payments.HasCompletedPayment(ctx, booking.BookingID)
			if err != nil {
				return err
			}
			if paid {
				continue
			}
			if err := s.reclaim(ctx, tx, booking); err != nil {
				return err
			}
			s.log.LogSweep("PAYMENT", fmt.Sprintf("reclaimed booking %d: no payment within %s", booking.BookingID, s.grace))
		}
		return nil
	})
}

// reclaimExpired removes bookings whose end time has passed. Rows with
// an unparsable end time are skipped and logged.
func (s *Sweeper) reclaimExpired(ctx context.Context, now time.Time) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var bookings []models.Booking
		err := tx.NewSelect().Model(&bookings).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		for _, booking := range bookings {
			endTime, err := models.ParseBookingTime(booking.EndTime)
			if err != nil {
				s.log.Warn("SWEEPER", fmt.Sprintf("booking %d has unparsable end time %q, skipping", booking.BookingID, booking.EndTime))
				continue
			}
			if endTime.After(now) {
				continue
			}
			if err := s.reclaim(ctx, tx, booking); err != nil {
				return err
			}
			s.log.LogSweep("EXPIRY", fmt.Sprintf("reclaimed booking %d: window ended at %s", booking.BookingID, booking.EndTime))
		}
		return nil
	})
}

// reclaim deletes one booking and frees its spot. A missing spot is
// logged but does not keep the booking alive.
func (s *Sweeper) reclaim(ctx context.Context, tx bun.Tx, booking models.Booking) error {
	res, err := tx.NewUpdate().
		Model((*models.ParkingSpot)(nil)).
		Set("is_available = ?", true).
		Where("spot_id = ?", booking.SpotID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		s.log.Warn("SWEEPER", fmt.Sprintf("booking %d references missing spot %d", booking.BookingID, booking.SpotID))
	}

	if _, err := tx.NewUpdate().
		Model((*models.Car)(nil)).
		Set("booking_id = NULL").
		Where("booking_id = ?", booking.BookingID).
		Exec(ctx); err != nil {
		return err
	}

	_, err = tx.NewDelete().
		Model((*models.Booking)(nil)).
		Where("booking_id = ?", booking.BookingID).
		Exec(ctx)
	return err
}

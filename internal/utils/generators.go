package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateTransactionID labels one confirmed charge.
func GenerateTransactionID() string {
	return fmt.Sprintf("txn_%d_%s", time.Now().Unix(), uuid.NewString())
}

// PaymentPayload encodes the deep-link start parameter the payment bot
// understands: pay_<bookingID>_<amount>_<userID>.
func PaymentPayload(bookingID int64, amount float64, userID int64) string {
	return fmt.Sprintf("pay_%d_%.2f_%d", bookingID, amount, userID)
}

// ParsePaymentPayload decodes a deep-link start parameter.
func ParsePaymentPayload(payload string) (bookingID int64, amount float64, userID int64, err error) {
	parts := strings.Split(payload, "_")
	if len(parts) != 4 || parts[0] != "pay" {
		return 0, 0, 0, errors.New("payload must have the form pay_<bookingID>_<amount>_<userID>")
	}
	bookingID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid booking id: %w", err)
	}
	amount, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid amount: %w", err)
	}
	userID, err = strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid user id: %w", err)
	}
	return bookingID, amount, userID, nil
}

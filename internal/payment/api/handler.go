package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/auth"
	"github.com/Refret28/microservice-booking/internal/booking"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"
	"github.com/Refret28/microservice-booking/internal/payment"
	"github.com/Refret28/microservice-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

type Handler struct {
	PaymentService *payment.Service
	BookingService *booking.Service
	BotUsername    string
	Logger         *logger.Logger
}

func NewHandler(paymentService *payment.Service, bookingService *booking.Service, botUsername string, log *logger.Logger) *Handler {
	return &Handler{
		PaymentService: paymentService,
		BookingService: bookingService,
		BotUsername:    botUsername,
		Logger:         log,
	}
}

// Confirm receives the payment agent's callback after a successful
// charge. This is the only endpoint that creates payment rows.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var callback models.PaymentCallback
	if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Confirm: failed to decode request body: %v", err))
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Confirm: booking=%d tx=%s", callback.BookingID, callback.TransactionID))

	if err := h.PaymentService.Confirm(r.Context(), callback); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Confirm: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "payment recorded", nil)
}

// Receipt returns the payment record of one booking to its owner or an
// admin.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "booking id must be a number"))
		return
	}

	receipt, err := h.PaymentService.Receipt(r.Context(), bookingID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if receipt.UserID != auth.UserID(r.Context()) && auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		utils.WriteError(w, apperr.New(apperr.PolicyViolation, "you can only view your own receipts"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, "receipt", receipt)
}

func (h *Handler) paymentLink(r *http.Request) (string, error) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		return "", apperr.New(apperr.Validation, "booking id must be a number")
	}

	details, err := h.BookingService.PaymentDetails(r.Context(), bookingID)
	if err != nil {
		return "", err
	}
	if details.UserID != auth.UserID(r.Context()) && auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		return "", apperr.New(apperr.PolicyViolation, "you can only pay for your own bookings")
	}

	payload := utils.PaymentPayload(details.BookingID, details.Amount, details.UserID)
	return fmt.Sprintf("https://t.me/%s?start=%s", h.BotUsername, payload), nil
}

// PaymentLink regenerates the deep link into the payment bot for a
// booking that awaits payment.
func (h *Handler) PaymentLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.paymentLink(r)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentLink: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "payment link", map[string]string{"link": link})
}

// PaymentQR renders the deep link as a PNG QR code.
func (h *Handler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	link, err := h.paymentLink(r)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentQR: %v", err))
		utils.WriteError(w, err)
		return
	}

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		utils.WriteError(w, apperr.Wrap(apperr.Unexpected, "failed to render QR code", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

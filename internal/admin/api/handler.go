package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/booking"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/payment"
	"github.com/Refret28/microservice-booking/internal/users"
	"github.com/Refret28/microservice-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler bundles the administrator operations: user management, spot
// overrides and payment reversal. Every route behind it requires the
// admin role.
type Handler struct {
	UserService    *users.Service
	BookingService *booking.Service
	PaymentService *payment.Service
	Logger         *logger.Logger
}

func NewHandler(userService *users.Service, bookingService *booking.Service, paymentService *payment.Service, log *logger.Logger) *Handler {
	return &Handler{
		UserService:    userService,
		BookingService: bookingService,
		PaymentService: paymentService,
		Logger:         log,
	}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userList, err := h.UserService.ListUsers(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListUsers: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "users", userList)
}

func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "user id must be a number"))
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	if err := h.UserService.SetUserStatus(r.Context(), userID, req.Status); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetUserStatus: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "user status updated", nil)
}

// UserBookings shows one user's bookings to an administrator.
func (h *Handler) UserBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "user id must be a number"))
		return
	}

	bookings, err := h.BookingService.UserBookings(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UserBookings: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "bookings", bookings)
}

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.BookingService.Locations(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListLocations: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "locations", locations)
}

func (h *Handler) LocationSpots(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "location id must be a number"))
		return
	}

	spots, err := h.BookingService.LocationSpots(r.Context(), locationID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("LocationSpots: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "spots", spots)
}

func (h *Handler) setSpotAvailability(w http.ResponseWriter, r *http.Request, available bool) {
	spotID, err := strconv.ParseInt(chi.URLParam(r, "spotID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "spot id must be a number"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SetSpotAvailability: spot=%d available=%t", spotID, available))

	if err := h.BookingService.ReleaseSpot(r.Context(), spotID, available); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetSpotAvailability: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "spot availability updated", nil)
}

// FreeSpot marks a spot available, force-cancelling the bookings
// holding it.
func (h *Handler) FreeSpot(w http.ResponseWriter, r *http.Request) {
	h.setSpotAvailability(w, r, true)
}

// ReserveSpot takes a spot out of circulation without touching bookings.
func (h *Handler) ReserveSpot(w http.ResponseWriter, r *http.Request) {
	h.setSpotAvailability(w, r, false)
}

func (h *Handler) UpdateSpotPrice(w http.ResponseWriter, r *http.Request) {
	spotID, err := strconv.ParseInt(chi.URLParam(r, "spotID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "spot id must be a number"))
		return
	}

	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	if err := h.BookingService.UpdateSpotPrice(r.Context(), spotID, req.Price); err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateSpotPrice: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "spot price updated", nil)
}

// CancelPayment marks a booking's payment cancelled without touching
// the booking or the spot.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "booking id must be a number"))
		return
	}

	if err := h.PaymentService.CancelByAdmin(r.Context(), bookingID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelPayment: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "payment cancelled", nil)
}

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
	"github.com/Refret28/microservice-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.Service
	Logger         *logger.Logger
}

func NewHandler(bookingService *booking.Service, log *logger.Logger) *Handler {
	return &Handler{
		BookingService: bookingService,
		Logger:         log,
	}
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: user=%d", userID))

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	response, err := h.BookingService.CreateBooking(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "booking created", response)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "booking id must be a number"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingID=%d", bookingID))

	target, err := h.BookingService.GetBooking(r.Context(), bookingID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if target.UserID != auth.UserID(r.Context()) && auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		utils.WriteError(w, apperr.New(apperr.PolicyViolation, "you can only cancel your own bookings"))
		return
	}

	if err := h.BookingService.CancelBooking(r.Context(), bookingID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelBooking: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "booking cancelled", nil)
}

func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	bookings, err := h.BookingService.UserBookings(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("MyBookings: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "bookings", bookings)
}

func (h *Handler) ListSpots(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	h.Logger.Debug("API", fmt.Sprintf("ListSpots: address=%q", address))

	spots, err := h.BookingService.ListSpots(r.Context(), address)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "spots", spots)
}

func (h *Handler) LocationPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.BookingService.LocationPrices(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("LocationPrices: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "prices", prices)
}

func (h *Handler) OccupiedLocations(w http.ResponseWriter, r *http.Request) {
	occupied, err := h.BookingService.OccupiedLocations(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OccupiedLocations: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "occupied locations", occupied)
}

func (h *Handler) AddCar(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.CarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	car, err := h.BookingService.AddCar(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AddCar: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "car saved", car)
}

func (h *Handler) CancellationNotice(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	notice, err := h.BookingService.CancellationNotice(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancellationNotice: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "cancellation notice", notice)
}

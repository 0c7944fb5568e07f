package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Refret28/microservice-booking/internal/analytics"
	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/utils"
)

const dateLayout = "2006-01-02"

type Handler struct {
	AnalyticsService *analytics.Service
	Logger           *logger.Logger
}

func NewHandler(analyticsService *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{
		AnalyticsService: analyticsService,
		Logger:           log,
	}
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.New(apperr.Validation, "from must be a date in YYYY-MM-DD form")
	}
	to, err := time.Parse(dateLayout, r.URL.Query().Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.New(apperr.Validation, "to must be a date in YYYY-MM-DD form")
	}
	return from, to, nil
}

func (h *Handler) BookingsPerLocation(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	rows, err := h.AnalyticsService.BookingsPerLocation(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("BookingsPerLocation: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "bookings per location", rows)
}

func (h *Handler) TopSpots(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	rows, err := h.AnalyticsService.TopSpots(r.Context(), from, to, 5)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TopSpots: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "top spots", rows)
}

func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	rows, err := h.AnalyticsService.Revenue(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Revenue: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "revenue", rows)
}

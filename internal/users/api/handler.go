package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/auth"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"
	"github.com/Refret28/microservice-booking/internal/users"
	"github.com/Refret28/microservice-booking/internal/utils"
)

type Handler struct {
	UserService *users.Service
	Logger      *logger.Logger
}

func NewHandler(userService *users.Service, log *logger.Logger) *Handler {
	return &Handler{
		UserService: userService,
		Logger:      log,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: failed to decode request body: %v", err))
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	user, err := h.UserService.Register(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "user registered", map[string]interface{}{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	token, err := h.UserService.Login(r.Context(), req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Login: refused for %s: %v", req.Email, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "logged in", token)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := h.UserService.Logout(r.Context(), userID); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	profile, err := h.UserService.Profile(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Profile: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "profile", profile)
}

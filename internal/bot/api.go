package bot

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/payment/correlation"
	"github.com/Refret28/microservice-booking/internal/utils"
)

// NewAdminRouter exposes the bot's control surface. The booking service
// calls it to drop a pending payment request after a booking is
// cancelled, so the user can no longer pay for it through /buy.
func NewAdminRouter(store *correlation.Store, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/payments/{userID}/cancel", func(w http.ResponseWriter, req *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(req, "userID"), 10, 64)
		if err != nil {
			utils.WriteError(w, apperr.New(apperr.Validation, "user id must be a number"))
			return
		}

		store.Evict(userID)
		log.Info("BOT", fmt.Sprintf("Evicted pending payment request for user %d", userID))
		utils.WriteJSON(w, http.StatusOK, "pending payment dropped", nil)
	})

	return r
}

package health

import (
	"context"
	"net/http"
	"time"

	"github.com/icco/watchlist/lib/validation"
	"gorm.io/gorm"
)

// Health is the health check response. It reports the overall status and
// the backing store's reachability.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DB        struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	} `json:"db"`
}

// Check returns an HTTP handler that verifies the database connection and
// reports the service health as JSON.
func Check(gdb *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := Health{
			Status:    "ok",
			Timestamp: time.Now(),
		}

		sqlDB, err := gdb.DB()
		if err != nil {
			health.Status = "degraded"
			health.DB.Status = "error"
			health.DB.Message = "Failed to get database connection"
			validation.WriteJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			health.Status = "degraded"
			health.DB.Status = "error"
			health.DB.Message = "Database ping failed"
			validation.WriteJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		health.DB.Status = "ok"
		validation.WriteJSON(w, http.StatusOK, health)
	}
}

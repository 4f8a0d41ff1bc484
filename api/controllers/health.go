package controllers

import (
	"net/http"

	"github.com/rmedina-dev/hauldash-backend/api/responses"
	"github.com/rmedina-dev/hauldash-backend/pkg/config"
	"github.com/rmedina-dev/hauldash-backend/pkg/db"
	pkgerrors "github.com/rmedina-dev/hauldash-backend/pkg/errors"
	"github.com/rmedina-dev/hauldash-backend/pkg/logger"
	"github.com/rmedina-dev/hauldash-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Hauldash-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the datastore dependencies answer.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Hauldash-Env", cfg.App.Env)
		ctx := r.Context()

		checks := map[string]string{}
		healthy := true

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				healthy = false
				checks["postgres"] = "down"
				if logg != nil {
					logg.Error(ctx, "health.postgres.ping", err)
				}
			} else {
				checks["postgres"] = "up"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				healthy = false
				checks["redis"] = "down"
				if logg != nil {
					logg.Error(ctx, "health.redis.ping", err)
				}
			} else {
				checks["redis"] = "up"
			}
		}

		if !healthy {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

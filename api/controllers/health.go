package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/promptability/Website-sub002/api/responses"
	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/logger"
)

const (
	envHeader        = "X-Promptability-Env"
	readinessTimeout = 2 * time.Second
)

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and answers 503 when any
// of them fails. Nil pingers are reported as skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string, len(deps))
			failed bool
		)
		var g errgroup.Group
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			g.Go(func() error {
				err := dep.Ping(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = true
					checks[name] = "unavailable"
					if logg != nil {
						logg.Error(logg.WithField(ctx, "dependency", name), "health.dependency_unavailable", err)
					}
					return nil
				}
				checks[name] = "ok"
				return nil
			})
		}
		_ = g.Wait()

		if failed {
			responses.WriteJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "unavailable", Checks: checks})
			return
		}
		responses.WriteSuccess(w, readyResponse{Status: "ready", Checks: checks})
	}
}

package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptability/Website-sub002/api/responses"
	"github.com/promptability/Website-sub002/api/validators"
	"github.com/promptability/Website-sub002/internal/entitlements"
	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/pkg/db/models"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/pagination"
)

type usageReader interface {
	Stats(ctx context.Context, userID string) (*models.UsageLedger, error)
}

type historyReader interface {
	History(ctx context.Context, userID string, params pagination.Params) ([]models.UsageLog, string, error)
}

type usageHistoryEntry struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

type usageHistoryResponse struct {
	Entries    []usageHistoryEntry `json:"entries"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

type usageStatsResponse struct {
	UserID           string          `json:"userId"`
	PlanType         string          `json:"planType"`
	DailyUsage       int64           `json:"dailyUsage"`
	MonthlyUsage     int64           `json:"monthlyUsage"`
	LifetimeUsage    int64           `json:"lifetimeUsage"`
	DailyLimit       int64           `json:"dailyLimit"`
	MonthlyLimit     int64           `json:"monthlyLimit"`
	RemainingDaily   int64           `json:"remainingDaily"`
	RemainingMonthly int64           `json:"remainingMonthly"`
	PeriodStart      time.Time       `json:"periodStart"`
	PeriodEnd        time.Time       `json:"periodEnd"`
	PlanExpiresAt    *time.Time      `json:"planExpiresAt,omitempty"`
	Features         []plans.Feature `json:"features"`
}

// UsageStats reports the caller's rolled-over counters and plan limits.
func UsageStats(ledger usageReader, catalog *plans.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil || catalog == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID, ok := validators.SanitizeID(chi.URLParam(r, "userId"))
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "userId is required"))
			return
		}

		row, err := ledger.Stats(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limits := catalog.LimitsFor(row.PlanTier)
		decision := entitlements.Evaluate(*row, limits)
		features := append([]plans.Feature{}, limits.Features...)

		resp := usageStatsResponse{
			UserID:           row.UserID,
			PlanType:         row.PlanTier.String(),
			DailyUsage:       row.DailyUsage,
			MonthlyUsage:     row.MonthlyUsage,
			LifetimeUsage:    row.LifetimeUsage,
			DailyLimit:       publicLimit(limits.DailyLimit),
			MonthlyLimit:     publicLimit(limits.MonthlyLimit),
			RemainingDaily:   decision.RemainingDaily,
			RemainingMonthly: decision.RemainingMonthly,
			PeriodStart:      row.PeriodStart.UTC(),
			PeriodEnd:        row.PeriodEnd.UTC(),
			Features:         features,
		}
		if row.PlanExpiresAt != nil {
			at := row.PlanExpiresAt.UTC()
			resp.PlanExpiresAt = &at
		}
		responses.WriteSuccess(w, resp)
	}
}

// UsageHistory pages through the caller's metered actions, newest first.
// Query parameters: limit (1..100) and cursor from the previous page.
func UsageHistory(ledger historyReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID, ok := validators.SanitizeID(chi.URLParam(r, "userId"))
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "userId is required"))
			return
		}

		params := pagination.Params{Cursor: r.URL.Query().Get("cursor")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = limit
		}

		logs, next, err := ledger.History(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := usageHistoryResponse{Entries: make([]usageHistoryEntry, 0, len(logs)), NextCursor: next}
		for _, entry := range logs {
			meta := json.RawMessage(entry.Metadata)
			if !json.Valid(meta) {
				meta = json.RawMessage("{}")
			}
			resp.Entries = append(resp.Entries, usageHistoryEntry{
				ID:        entry.ID.String(),
				Action:    entry.Action.String(),
				Metadata:  meta,
				CreatedAt: entry.CreatedAt.UTC(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// publicLimit collapses the internal sentinels into plans.Unlimited.
func publicLimit(limit int64) int64 {
	if limit < 0 {
		return plans.Unlimited
	}
	return limit
}

package controllers

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/promptability/Website-sub002/api/responses"
	"github.com/promptability/Website-sub002/api/validators"
	"github.com/promptability/Website-sub002/internal/entitlements"
	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/internal/prompts"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/types"
)

type limitChecker interface {
	CheckLimit(ctx context.Context, userID string) (entitlements.Decision, error)
}

type usageRecorder interface {
	Increment(ctx context.Context, userID string, action enums.UsageAction, metadata map[string]any) error
}

// MeteredDeps are the collaborators shared by the metered endpoints.
type MeteredDeps struct {
	Gate    limitChecker
	Usage   usageRecorder
	Catalog *plans.Catalog
	Logger  *logger.Logger
}

type meteredRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"userId"`
}

// metered performs the work for one allowed request.
type metered func(prompt string, decision entitlements.Decision) (any, error)

// Optimize rewrites a prompt into a better-structured one.
func Optimize(deps MeteredDeps) http.HandlerFunc {
	return meteredHandler(deps, enums.UsageActionOptimize, func(prompt string, _ entitlements.Decision) (any, error) {
		return prompts.Optimize(prompt)
	})
}

// Analyze scores a prompt. Plans with advanced analysis also get vague-term
// detection.
func Analyze(deps MeteredDeps) http.HandlerFunc {
	return meteredHandler(deps, enums.UsageActionAnalyze, func(prompt string, decision entitlements.Decision) (any, error) {
		advanced := false
		if deps.Catalog != nil {
			advanced = deps.Catalog.LimitsFor(decision.PlanTier).HasFeature(plans.FeatureAdvancedAnalysis)
		}
		return prompts.Analyze(prompt, advanced)
	})
}

// meteredHandler runs gate, work, increment in that order. The counters are
// only touched after the work succeeded.
func meteredHandler(deps MeteredDeps, action enums.UsageAction, work metered) http.HandlerFunc {
	logg := deps.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if deps.Gate == nil || deps.Usage == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage metering unavailable"))
			return
		}

		var payload meteredRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		userID, ok := validators.SanitizeID(payload.UserID)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "userId is required"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(logg.WithUserID(ctx, userID), map[string]any{"action": action.String()})
		}
		if err := prompts.Validate(payload.Prompt); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		decision, err := deps.Gate.CheckLimit(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !decision.Allowed {
			if logg != nil {
				logg.Info(logg.WithField(ctx, "reason", decision.Reason), "usage.limit_reached")
			}
			responses.WriteJSON(w, http.StatusTooManyRequests, types.LimitReached{
				Error:            limitMessage(decision),
				LimitReached:     true,
				PlanType:         decision.PlanTier.String(),
				RemainingDaily:   decision.RemainingDaily,
				RemainingMonthly: decision.RemainingMonthly,
			})
			return
		}

		data, err := work(payload.Prompt, decision)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := deps.Usage.Increment(ctx, userID, action, map[string]any{
			"promptLength": utf8.RuneCountInString(payload.Prompt),
		}); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// Re-read so the reported remaining counts include this request.
		after, err := deps.Gate.CheckLimit(ctx, userID)
		if err != nil {
			after = consumed(decision)
		}

		responses.WriteJSON(w, http.StatusOK, types.MeteredResult{
			Success: true,
			Data:    data,
			Usage: types.UsageSummary{
				RemainingDaily:   after.RemainingDaily,
				RemainingMonthly: after.RemainingMonthly,
				PlanType:         after.PlanTier.String(),
			},
		})
	}
}

func limitMessage(decision entitlements.Decision) string {
	switch decision.Reason {
	case entitlements.ReasonMonthlyLimit:
		return "Monthly limit reached. Upgrade your plan to continue."
	case entitlements.ReasonDailyLimit:
		return "Daily limit reached. Try again tomorrow or upgrade your plan."
	}
	return "Usage limit reached."
}

// consumed derives the post-increment view from the pre-increment decision.
func consumed(d entitlements.Decision) entitlements.Decision {
	if d.RemainingDaily > 0 {
		d.RemainingDaily--
	}
	if d.RemainingMonthly > 0 {
		d.RemainingMonthly--
	}
	return d
}

package controllers

import (
	"net/http"

	"github.com/promptability/Website-sub002/api/responses"
	"github.com/promptability/Website-sub002/internal/plans"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
)

type planResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DailyLimit   int64           `json:"dailyLimit"`
	MonthlyLimit int64           `json:"monthlyLimit"`
	Features     []plans.Feature `json:"features"`
	MinSeats     int64           `json:"minSeats"`
	MaxSeats     int64           `json:"maxSeats"`
	Purchasable  bool            `json:"purchasable"`
}

// PlansList exposes the public catalog. Provider price ids stay server side.
func PlansList(catalog *plans.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}
		tiers := catalog.Tiers()
		out := make([]planResponse, 0, len(tiers))
		for _, tier := range tiers {
			out = append(out, planResponse{
				ID:           tier.ID.String(),
				Name:         tier.Name,
				DailyLimit:   publicLimit(tier.Limits.DailyLimit),
				MonthlyLimit: publicLimit(tier.Limits.MonthlyLimit),
				Features:     append([]plans.Feature{}, tier.Limits.Features...),
				MinSeats:     tier.MinSeats,
				MaxSeats:     tier.MaxSeats,
				Purchasable:  tier.PriceIDs.Monthly != "" || tier.PriceIDs.Yearly != "",
			})
		}
		responses.WriteSuccess(w, map[string]any{"plans": out})
	}
}

// README: Cost handlers: calculate, get, finalize and per-route history.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"freightquote/internal/modules/costing"
	"freightquote/internal/modules/location"
	"freightquote/internal/types"
)

type CostHandler struct {
	costs *costing.Service
}

func NewCostHandler(svc *costing.Service) *CostHandler {
	return &CostHandler{costs: svc}
}

// estimateReq prices a straight line between two points inside one country.
type estimateReq struct {
	From    location.Point `json:"from"`
	To      location.Point `json:"to"`
	Country string         `json:"country"`
}

type calculateReq struct {
	RouteID     string               `json:"route_id"`
	Scope       string               `json:"settings_scope"`
	Segments    []costing.Segment    `json:"segments"`
	Origin      string               `json:"origin"`
	Destination string               `json:"destination"`
	Estimate    *estimateReq         `json:"estimate"`
	EmptyLegs   []costing.Segment    `json:"empty_legs"`
	Vehicle     *costing.VehicleSpec `json:"vehicle"`
	Cargo       *costing.CargoSpec   `json:"cargo"`

	IncludeEmptyDriving     bool   `json:"include_empty_driving"`
	IncludeCountryBreakdown bool   `json:"include_country_breakdown"`
	Strict                  *bool  `json:"strict"`
	Validity                string `json:"validity"`
}

func (r calculateReq) command() (costing.CalculateCommand, error) {
	cmd := costing.CalculateCommand{
		RouteID:                 types.ID(r.RouteID),
		Scope:                   r.Scope,
		Segments:                r.Segments,
		Origin:                  r.Origin,
		Destination:             r.Destination,
		EmptyLegs:               r.EmptyLegs,
		Vehicle:                 r.Vehicle,
		Cargo:                   r.Cargo,
		IncludeEmptyDriving:     r.IncludeEmptyDriving,
		IncludeCountryBreakdown: r.IncludeCountryBreakdown,
		Strict:                  r.Strict,
	}
	if r.Validity != "" {
		d, err := time.ParseDuration(r.Validity)
		if err != nil || d <= 0 {
			return cmd, types.Invalid("validity must be a positive duration, got %q", r.Validity)
		}
		cmd.Validity = d
	}
	if len(cmd.Segments) == 0 && r.Estimate != nil {
		if r.Estimate.Country == "" {
			return cmd, types.Invalid("estimate.country is required")
		}
		cmd.Segments = []costing.Segment{location.EstimateSegment(r.Estimate.From, r.Estimate.To, r.Estimate.Country)}
		cmd.Estimated = true
	}
	return cmd, nil
}

type costResponse struct {
	*costing.Cost
	RecalculateNeeded bool `json:"recalculate_needed"`
}

// Calculate serves POST /api/costs.
func (h *CostHandler) Calculate(c *gin.Context) {
	var req calculateReq
	if !bindJSON(c, &req) {
		return
	}
	cmd, err := req.command()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	cost, err := h.costs.Calculate(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, costResponse{Cost: cost})
}

func (h *CostHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cost, err := h.costs.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	needed, err := h.costs.RecalculateNeeded(c.Request.Context(), cost)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, costResponse{Cost: cost, RecalculateNeeded: needed})
}

// Finalize serves POST /api/costs/:id/finalize.
func (h *CostHandler) Finalize(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cost, entry, err := h.costs.Finalize(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"cost": cost, "history_entry": entry})
}

// History serves GET /api/routes/:id/costs.
func (h *CostHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.costs.GetHistory(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"route_id": id, "entries": entries})
}

// README: Offer handlers: create, get, update (margin/status), history, version comparison.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"freightquote/internal/modules/offer"
	"freightquote/internal/types"
)

type OfferHandler struct {
	offers *offer.Service
}

func NewOfferHandler(svc *offer.Service) *OfferHandler {
	return &OfferHandler{offers: svc}
}

type createOfferReq struct {
	CostID     string           `json:"cost_id"`
	Route      *calculateReq    `json:"route"`
	Margin     decimal.Decimal  `json:"margin"`
	FinalPrice *decimal.Decimal `json:"final_price"`
	Reason     string           `json:"reason"`
}

// Create serves POST /api/offers from either an existing cost or a route to calculate.
func (h *OfferHandler) Create(c *gin.Context) {
	var req createOfferReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := offer.CreateCommand{
		CostID:     types.ID(req.CostID),
		Margin:     req.Margin,
		FinalPrice: req.FinalPrice,
		Actor:      actor(c),
		Reason:     req.Reason,
	}
	if req.CostID == "" && req.Route != nil {
		calc, err := req.Route.command()
		if err != nil {
			writeServiceError(c, err)
			return
		}
		cmd.Calculate = &calc
	}
	o, err := h.offers.Create(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OfferHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.offers.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type updateOfferReq struct {
	Margin           *decimal.Decimal `json:"margin"`
	Status           *string          `json:"status"`
	ExpectedRevision *int             `json:"expected_revision"`
	Reason           string           `json:"reason"`
}

// Update serves PATCH /api/offers/:id.
func (h *OfferHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateOfferReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Margin == nil && req.Status == nil {
		writeError(c, http.StatusBadRequest, "margin or status is required")
		return
	}
	cmd := offer.UpdateCommand{
		OfferID:          id,
		Margin:           req.Margin,
		ExpectedRevision: req.ExpectedRevision,
		Actor:            actor(c),
		Reason:           req.Reason,
	}
	if req.Status != nil {
		st, err := offer.ParseStatus(*req.Status)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		cmd.Status = &st
	}
	o, err := h.offers.Update(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OfferHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.offers.GetHistory(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offer_id": id, "entries": entries})
}

// Compare serves GET /api/offers/:id/compare?v1=1.0&v2=1.2.
func (h *OfferHandler) Compare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	v1, v2 := c.Query("v1"), c.Query("v2")
	if v1 == "" || v2 == "" {
		writeError(c, http.StatusBadRequest, "v1 and v2 are required")
		return
	}
	a, b, err := h.offers.CompareVersions(c.Request.Context(), id, v1, v2)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offer_id": id, "v1": a, "v2": b})
}

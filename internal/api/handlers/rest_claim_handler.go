package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/api/middleware"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
)

// RestClaimHandler handles claims and the request lists built from them.
type RestClaimHandler struct {
	claims  services.IClaimService
	queries services.IListingQueryService
}

func NewRestClaimHandler(claims services.IClaimService, queries services.IListingQueryService) *RestClaimHandler {
	return &RestClaimHandler{claims: claims, queries: queries}
}

// SubmitClaim handles POST /v1/listings/:id/claims
func (h *RestClaimHandler) SubmitClaim(c *gin.Context) {
	var in services.ClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequestBody(c)
		return
	}
	in.FoodID = c.Param("id")
	in.RequesterID = middleware.UserID(c)

	res, err := h.claims.SubmitClaim(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"request":       res.Request,
		"listing":       newListingView(res.Listing, time.Now()),
		"auto_approved": res.AutoApproved,
		"message":       "Your request has been approved. Contact details have been shared with the donor.",
	})
}

// ListRequests handles GET /v1/listings/:id/requests. Only the listing's
// owner or an admin may see who requested it.
func (h *RestClaimHandler) ListRequests(c *gin.Context) {
	ctx := c.Request.Context()
	listing, err := h.queries.GetListing(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	userID := middleware.UserID(c)
	if !middleware.IsAdmin(c) && (listing.OwnerID == "" || listing.OwnerID != userID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Only the donor can view requests for this listing", Code: "forbidden"})
		return
	}

	requests, err := h.queries.ListRequests(ctx, listing.ID.String())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}

// MyRequests handles GET /v1/requests/mine
func (h *RestClaimHandler) MyRequests(c *gin.Context) {
	requests, err := h.queries.ListUserRequests(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}

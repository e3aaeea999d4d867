package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/api/middleware"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
)

const defaultBrowseLimit = 50

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	donations  services.IDonationService
	queries    services.IListingQueryService
	maxResults int
}

// NewRestListingHandler creates a new RestListingHandler. maxResults caps the
// page size of browse requests.
func NewRestListingHandler(donations services.IDonationService, queries services.IListingQueryService, maxResults int) *RestListingHandler {
	if maxResults <= 0 {
		maxResults = defaultBrowseLimit
	}
	return &RestListingHandler{donations: donations, queries: queries, maxResults: maxResults}
}

// CreateListing handles POST /v1/listings
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	var in services.DonationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequestBody(c)
		return
	}
	in.OwnerID = middleware.UserID(c)

	listing, err := h.donations.SubmitDonation(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newListingView(listing, time.Now()))
}

// BrowseListings handles GET /v1/listings
func (h *RestListingHandler) BrowseListings(c *gin.Context) {
	opts := services.BrowseOptions{
		SearchText: c.Query("q"),
		FoodType:   c.Query("food_type"),
		Sort:       services.SortOrder(c.Query("sort")),
	}

	var invalid []string
	intParam := func(name string, def int) int {
		raw := c.Query(name)
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			invalid = append(invalid, name)
		}
		return v
	}
	opts.Limit = intParam("limit", defaultBrowseLimit)
	opts.Offset = intParam("offset", 0)
	if raw := c.Query("include_claimed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			invalid = append(invalid, "include_claimed")
		}
		opts.IncludeClaimed = v
	}
	if len(invalid) > 0 {
		respondError(c, &services.ValidationError{Fields: invalid, Reason: "invalid filter"})
		return
	}
	if opts.Limit == 0 || opts.Limit > h.maxResults {
		opts.Limit = h.maxResults
	}

	listings, total, err := h.queries.Browse(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   newListingViews(listings, time.Now()),
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// GetListing handles GET /v1/listings/:id
func (h *RestListingHandler) GetListing(c *gin.Context) {
	listing, err := h.queries.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newListingView(listing, time.Now()))
}

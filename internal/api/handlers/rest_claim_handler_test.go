package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Cedctf/foodbridge-sub000/internal/api/handlers"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

type claimRig struct {
	claims  *MockClaimService
	queries *MockQueryService
	router  http.Handler
}

func newClaimRig() *claimRig {
	rig := &claimRig{claims: new(MockClaimService), queries: new(MockQueryService)}
	h := handlers.NewRestClaimHandler(rig.claims, rig.queries)
	r := newEngine()
	r.POST("/v1/listings/:id/claims", optionalAuth(), h.SubmitClaim)
	r.GET("/v1/listings/:id/requests", requiredAuth(), h.ListRequests)
	r.GET("/v1/requests/mine", requiredAuth(), h.MyRequests)
	rig.router = r
	return rig
}

func TestSubmitClaim_Approved(t *testing.T) {
	rig := newClaimRig()
	listingID := utils.NewSixID()
	now := time.Now()
	listing := &models.Listing{ID: listingID, Name: "Pears", ExpiryDate: now.Add(72 * time.Hour)}
	req := &models.Request{ID: utils.NewSixID(), FoodID: listingID, RequesterEmail: "sam@example.com", Status: models.RequestStatusApproved, ApprovedAt: &now}
	listing.MarkClaimedBy(req.ID, now)

	rig.claims.On("SubmitClaim", mock.Anything, services.ClaimInput{
		FoodID:         listingID.String(),
		RequesterName:  "Sam",
		RequesterEmail: "sam@example.com",
		RequesterID:    "user-3",
	}).Return(&services.ClaimResult{Request: req, Listing: listing, AutoApproved: true}, nil)

	w := do(rig.router, http.MethodPost, "/v1/listings/"+listingID.String()+"/claims", map[string]any{
		"food_id":         "ignored",
		"requester_name":  "Sam",
		"requester_email": "sam@example.com",
	}, bearer(t, "user-3", false))

	requireStatus(t, http.StatusCreated, w)
	body := decode(t, w)
	assert.Equal(t, true, body["auto_approved"])
	assert.Equal(t, "approved", body["request"].(map[string]any)["status"])
	assert.Equal(t, "claimed", body["listing"].(map[string]any)["status"])
	rig.claims.AssertExpectations(t)
}

func TestSubmitClaim_Conflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"already claimed", services.ErrAlreadyClaimed, "already_claimed"},
		{"duplicate", services.ErrDuplicateRequest, "duplicate_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newClaimRig()
			rig.claims.On("SubmitClaim", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := do(rig.router, http.MethodPost, "/v1/listings/abc/claims",
				map[string]any{"requester_name": "Sam", "requester_email": "sam@example.com"}, "")
			requireStatus(t, http.StatusConflict, w)
			body := decode(t, w)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListRequests_OwnerOnly(t *testing.T) {
	rig := newClaimRig()
	listing := &models.Listing{ID: utils.NewSixID(), OwnerID: "donor-1"}
	requests := []models.Request{{ID: utils.NewSixID(), FoodID: listing.ID, Status: models.RequestStatusApproved}}
	rig.queries.On("GetListing", mock.Anything, listing.ID.String()).Return(listing, nil)
	rig.queries.On("ListRequests", mock.Anything, listing.ID.String()).Return(requests, nil)
	path := "/v1/listings/" + listing.ID.String() + "/requests"

	w := do(rig.router, http.MethodGet, path, nil, bearer(t, "donor-1", false))
	requireStatus(t, http.StatusOK, w)
	assert.Len(t, decode(t, w)["data"], 1)

	w = do(rig.router, http.MethodGet, path, nil, bearer(t, "someone-else", false))
	requireStatus(t, http.StatusForbidden, w)

	w = do(rig.router, http.MethodGet, path, nil, bearer(t, "ops", true))
	requireStatus(t, http.StatusOK, w)

	w = do(rig.router, http.MethodGet, path, nil, "")
	requireStatus(t, http.StatusUnauthorized, w)
}

func TestListRequests_AnonymousListingHiddenFromUsers(t *testing.T) {
	rig := newClaimRig()
	listing := &models.Listing{ID: utils.NewSixID()}
	rig.queries.On("GetListing", mock.Anything, listing.ID.String()).Return(listing, nil)

	w := do(rig.router, http.MethodGet, "/v1/listings/"+listing.ID.String()+"/requests", nil, bearer(t, "anyone", false))
	requireStatus(t, http.StatusForbidden, w)
	rig.queries.AssertNotCalled(t, "ListRequests", mock.Anything, mock.Anything)
}

func TestMyRequests(t *testing.T) {
	rig := newClaimRig()
	rig.queries.On("ListUserRequests", mock.Anything, "user-5").Return([]models.Request{}, nil)

	w := do(rig.router, http.MethodGet, "/v1/requests/mine", nil, bearer(t, "user-5", false))
	requireStatus(t, http.StatusOK, w)
	data, ok := decode(t, w)["data"].([]any)
	require.True(t, ok)
	assert.Empty(t, data)
}

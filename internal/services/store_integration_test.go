package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

func setupStoreDB(t *testing.T, dbName string) *mongo.Database {
	database := utils.SetupTestDB(t, dbName,
		db.ListingsCollection, db.RequestsCollection, db.ImpactCollection, db.EmailTemplatesCollection)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))
	return database
}

func testListing(owner string) *models.Listing {
	return &models.Listing{
		Name:            "Bagels",
		FoodType:        models.FoodTypeBakery,
		Quantity:        12,
		ExpiryDate:      time.Now().Add(48 * time.Hour).UTC(),
		LocationAddress: "5 Bridge Rd",
		OwnerID:         owner,
	}
}

func TestListingService_CreateFindAndMarkClaimed(t *testing.T) {
	database := setupStoreDB(t, "testdb_listing_store")
	svc := NewListingService(database, &config.Config{BrowseMaxResults: 50})
	ctx := context.Background()

	listing := testListing("donor-1")
	require.NoError(t, svc.CreateListing(ctx, listing))
	require.False(t, listing.ID.IsZero())

	found, err := svc.FindListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.Name, found.Name)
	assert.False(t, found.IsClaimed())

	_, err = svc.FindListingByID(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, ErrNotFound)

	winner, loser := utils.NewSixID(), utils.NewSixID()
	require.NoError(t, svc.MarkClaimed(ctx, listing.ID, winner, time.Now().UTC()))
	require.NoError(t, svc.MarkClaimed(ctx, listing.ID, winner, time.Now().UTC()), "same request is idempotent")
	assert.ErrorIs(t, svc.MarkClaimed(ctx, listing.ID, loser, time.Now().UTC()), ErrAlreadyClaimed)

	available, err := svc.FindListings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, available)

	all, err := svc.FindListings(ctx, ListingFilter{IncludeClaimed: true, SearchText: "BAGEL"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, winner, *all[0].ClaimedBy)
}

func TestListingService_PagesPastResultCap(t *testing.T) {
	database := setupStoreDB(t, "testdb_listing_paging")
	svc := NewListingService(database, &config.Config{BrowseMaxResults: 2})
	ctx := context.Background()

	var created []*models.Listing
	for i := 0; i < 5; i++ {
		l := testListing("donor-1")
		l.Name = fmt.Sprintf("Loaf %d", i)
		require.NoError(t, svc.CreateListing(ctx, l))
		created = append(created, l)
		time.Sleep(2 * time.Millisecond)
	}

	total, err := svc.CountListings(ctx, ListingFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	page, err := svc.FindListings(ctx, ListingFilter{Sort: SortOldest, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 2, "page size falls back to the configured cap")
	assert.Equal(t, created[3].ID, page[0].ID)
	assert.Equal(t, created[4].ID, page[1].ID)

	newest, err := svc.FindListings(ctx, ListingFilter{Offset: 4})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, created[0].ID, newest[0].ID)

	older, err := svc.FindListings(ctx, ListingFilter{Before: CursorAt(page[0])})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, created[2].ID, older[0].ID)
	assert.Equal(t, created[1].ID, older[1].ID)
}

func TestRequestService_UniqueIndexes(t *testing.T) {
	database := setupStoreDB(t, "testdb_request_store")
	svc := NewRequestService(database)
	ctx := context.Background()
	foodID := utils.NewSixID()

	first := &models.Request{FoodID: foodID, RequesterName: "A", RequesterEmail: "A@x.io", Status: models.RequestStatusApproved}
	require.NoError(t, svc.CreateRequest(ctx, first))
	assert.Equal(t, "a@x.io", first.RequesterEmail)

	second := &models.Request{FoodID: foodID, RequesterName: "B", RequesterEmail: "b@x.io", Status: models.RequestStatusApproved}
	assert.ErrorIs(t, svc.CreateRequest(ctx, second), ErrAlreadyClaimed)

	dupe := &models.Request{FoodID: foodID, RequesterName: "A", RequesterEmail: "a@x.io", Status: models.RequestStatusPending}
	assert.ErrorIs(t, svc.CreateRequest(ctx, dupe), ErrDuplicateRequest)

	approved, err := svc.FindApprovedByFood(ctx, foodID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, approved.ID)

	none, err := svc.FindApprovedByFood(ctx, utils.NewSixID())
	require.NoError(t, err)
	assert.Nil(t, none)

	byRequester, err := svc.FindByFoodAndRequester(ctx, foodID, "", " A@X.IO")
	require.NoError(t, err)
	require.NotNil(t, byRequester)
	assert.Equal(t, first.ID, byRequester.ID)
}

func TestRequestService_ConcurrentApprovalsOnlyOneWins(t *testing.T) {
	database := setupStoreDB(t, "testdb_request_race")
	svc := NewRequestService(database)
	foodID := utils.NewSixID()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.CreateRequest(context.Background(), &models.Request{
				FoodID:         foodID,
				RequesterName:  "R",
				RequesterEmail: fmt.Sprintf("r%d@x.io", i),
				Status:         models.RequestStatusApproved,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	}
	assert.Equal(t, 1, wins)
}

func TestImpactService_IdempotentApply(t *testing.T) {
	database := setupStoreDB(t, "testdb_impact_ledger")
	svc := NewImpactService(database, &config.Config{ImpactKeyWindow: 5})
	ctx := context.Background()

	zero, err := svc.GetImpact(ctx, "donor-9")
	require.NoError(t, err)
	assert.Zero(t, zero.RecipientsHelped)

	key := models.ClaimImpactKey(utils.NewSixID())
	rec, applied, err := svc.ApplyImpact(ctx, "donor-9", models.ImpactDelta{RecipientsHelped: 1}, key)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, rec.RecipientsHelped)

	rec, applied, err = svc.ApplyImpact(ctx, "donor-9", models.ImpactDelta{RecipientsHelped: 1}, key)
	require.NoError(t, err)
	assert.False(t, applied, "redelivery must not double count")
	assert.Equal(t, 1, rec.RecipientsHelped)
}

func TestImpactService_ConcurrentIncrementsAreNotLost(t *testing.T) {
	database := setupStoreDB(t, "testdb_impact_concurrent")
	svc := NewImpactService(database, nil)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delta := models.ImpactDelta{MealsProvided: 2, FoodSavedLbs: 1}
			_, _, err := svc.ApplyImpact(context.Background(), "donor-c", delta, fmt.Sprintf("donation:%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := svc.GetImpact(context.Background(), "donor-c")
	require.NoError(t, err)
	assert.Equal(t, 2*n, rec.MealsProvided)
	assert.Equal(t, n, rec.FoodSavedLbs)
}

func TestEmailTemplateService_OverrideAndDefault(t *testing.T) {
	database := setupStoreDB(t, "testdb_email_templates")
	svc := NewEmailTemplateService(database)
	ctx := context.Background()

	data := map[string]any{
		"ListingName": "Bagels", "RequesterName": "Sam", "Quantity": 3,
		"LocationAddress": "5 Bridge Rd", "ExpiryDate": "2030-01-01",
	}
	subject, _, err := svc.Render(ctx, TemplateClaimApproved, DefaultLocale, data)
	require.NoError(t, err)
	assert.Equal(t, "Your claim for Bagels is approved", subject)

	require.NoError(t, svc.SaveTemplate(ctx, &models.EmailTemplate{
		TemplateID: TemplateClaimApproved, Subject: "Enjoy {{.ListingName}}", Body: "-",
	}))
	subject, _, err = svc.Render(ctx, TemplateClaimApproved, DefaultLocale, data)
	require.NoError(t, err)
	assert.Equal(t, "Enjoy Bagels", subject)

	_, err = svc.GetTemplate(ctx, "no_such_template", DefaultLocale)
	assert.True(t, errors.Is(err, ErrNotFound))
}

package services

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/models"
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// memListings is an in-memory IListingService with the same CAS semantics as Mongo.
type memListings struct {
	mu        sync.Mutex
	byID      map[utils.SixID]models.Listing
	markErr   error
	findErr   error
	markHits  int
	findCalls []ListingFilter
}

func newMemListings() *memListings {
	return &memListings{byID: map[utils.SixID]models.Listing{}}
}

func (m *memListings) CreateListing(_ context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	l.ID = utils.NewSixID()
	m.byID[l.ID] = *l
	return nil
}

func (m *memListings) FindListingByID(_ context.Context, id utils.SixID) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	l, ok := m.byID[id]
	if !ok {
		return nil, &NotFoundError{Entity: "listing", ID: id.String()}
	}
	return &l, nil
}

func (m *memListings) match(f ListingFilter) []models.Listing {
	out := []models.Listing{}
	for _, l := range m.byID {
		if !f.IncludeClaimed && l.IsClaimed() {
			continue
		}
		if f.FoodType != "" && l.FoodType != f.FoodType {
			continue
		}
		if f.Before != nil && !newerThan(f.Before, l) {
			continue
		}
		if f.SearchText != "" && !strings.Contains(strings.ToLower(l.Name+" "+l.Description+" "+l.LocationAddress), strings.ToLower(f.SearchText)) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// newerThan reports whether l comes after c in newest-first order.
func newerThan(c *ListingCursor, l models.Listing) bool {
	if !l.CreatedAt.Equal(c.CreatedAt) {
		return l.CreatedAt.Before(c.CreatedAt)
	}
	return bytes.Compare(l.ID[:], c.ID[:]) < 0
}

func (m *memListings) FindListings(_ context.Context, f ListingFilter) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls = append(m.findCalls, f)
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := m.match(f)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	SortListings(out, f.Sort)
	if f.Offset >= len(out) {
		return []models.Listing{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memListings) CountListings(_ context.Context, f ListingFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return 0, m.findErr
	}
	return len(m.match(f)), nil
}

func (m *memListings) MarkClaimed(_ context.Context, id, requestID utils.SixID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markHits++
	if m.markErr != nil {
		return m.markErr
	}
	l, ok := m.byID[id]
	if !ok {
		return &NotFoundError{Entity: "listing", ID: id.String()}
	}
	if l.IsClaimed() {
		if *l.ClaimedBy == requestID {
			return nil
		}
		return ErrAlreadyClaimed
	}
	l.MarkClaimedBy(requestID, at)
	m.byID[id] = l
	return nil
}

func (m *memListings) put(l models.Listing) models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID.IsZero() {
		l.ID = utils.NewSixID()
	}
	m.byID[l.ID] = l
	return l
}

func (m *memListings) get(id utils.SixID) models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// memRequests is an in-memory IRequestService enforcing the request unique indexes.
type memRequests struct {
	mu        sync.Mutex
	all       []models.Request
	createErr error
}

func newMemRequests() *memRequests {
	return &memRequests{}
}

func (m *memRequests) CreateRequest(_ context.Context, req *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	req.RequesterEmail = NormalizeEmail(req.RequesterEmail)
	for _, r := range m.all {
		if r.FoodID != req.FoodID {
			continue
		}
		if r.IsApproved() && req.IsApproved() {
			return ErrAlreadyClaimed
		}
		if r.RequesterEmail == req.RequesterEmail || (req.RequesterID != "" && r.RequesterID == req.RequesterID) {
			return ErrDuplicateRequest
		}
	}
	req.ID = utils.NewSixID()
	req.UpdatedAt = time.Now().UTC()
	m.all = append(m.all, *req)
	return nil
}

func (m *memRequests) FindRequestByID(_ context.Context, id utils.SixID) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.all {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, &NotFoundError{Entity: "request", ID: id.String()}
}

func (m *memRequests) filter(keep func(r models.Request) bool) []models.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Request{}
	for _, r := range m.all {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memRequests) FindByFood(_ context.Context, foodID utils.SixID) ([]models.Request, error) {
	return m.filter(func(r models.Request) bool { return r.FoodID == foodID }), nil
}

func (m *memRequests) FindApprovedByFood(_ context.Context, foodID utils.SixID) (*models.Request, error) {
	found := m.filter(func(r models.Request) bool { return r.FoodID == foodID && r.IsApproved() })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (m *memRequests) FindApprovedByFoods(_ context.Context, ids []utils.SixID) (map[utils.SixID]models.Request, error) {
	want := map[utils.SixID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[utils.SixID]models.Request{}
	for _, r := range m.filter(func(r models.Request) bool { return want[r.FoodID] && r.IsApproved() }) {
		out[r.FoodID] = r
	}
	return out, nil
}

func (m *memRequests) FindByFoodAndRequester(_ context.Context, foodID utils.SixID, requesterID, email string) (*models.Request, error) {
	email = NormalizeEmail(email)
	found := m.filter(func(r models.Request) bool {
		return r.FoodID == foodID && (r.RequesterEmail == email || (requesterID != "" && r.RequesterID == requesterID))
	})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (m *memRequests) FindByUser(_ context.Context, userID string) ([]models.Request, error) {
	return m.filter(func(r models.Request) bool { return userID != "" && r.RequesterID == userID }), nil
}

func (m *memRequests) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.all)
}

// impactCall records one DispatchImpact.
type impactCall struct {
	OwnerID string
	Delta   models.ImpactDelta
	Key     string
}

// recorder implements every side-effect interface and records what it was asked to do.
type recorder struct {
	mu         sync.Mutex
	impacts    []impactCall
	reconciles []utils.SixID
	notified   []utils.SixID
	events     []models.ListingEvent
	impactErr  error
}

var errDispatch = errors.New("queue unavailable")

func (r *recorder) effects() SideEffects {
	return SideEffects{Impact: r, Reconcile: r, Notifier: r, Events: r}
}

func (r *recorder) DispatchImpact(_ context.Context, ownerID string, delta models.ImpactDelta, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.impactErr != nil {
		return r.impactErr
	}
	r.impacts = append(r.impacts, impactCall{OwnerID: ownerID, Delta: delta, Key: key})
	return nil
}

func (r *recorder) ScheduleReconcile(_ context.Context, listingID utils.SixID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciles = append(r.reconciles, listingID)
	return nil
}

func (r *recorder) NotifyClaimApproved(_ context.Context, _ *models.Listing, req *models.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, req.ID)
	return nil
}

func (r *recorder) Publish(_ context.Context, event models.ListingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

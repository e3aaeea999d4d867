package models

import (
	"time"

	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// RequestStatus is the arbitration outcome recorded on a Request.
// Only approved requests are persisted today; pending and rejected are
// reserved for a donor-approval workflow.
type RequestStatus string

const (
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusRejected RequestStatus = "rejected"
)

// Request is a recipient's claim on a listing.
type Request struct {
	ID             utils.SixID   `bson:"_id" json:"id"`
	FoodID         utils.SixID   `bson:"food_id" json:"food_id"`
	RequesterID    string        `bson:"requester_id,omitempty" json:"requester_id,omitempty"` // empty for anonymous claims
	RequesterName  string        `bson:"requester_name" json:"requester_name"`
	RequesterEmail string        `bson:"requester_email" json:"requester_email"`
	RequesterPhone string        `bson:"requester_phone,omitempty" json:"requester_phone,omitempty"`
	Message        string        `bson:"message,omitempty" json:"message,omitempty"`
	Status         RequestStatus `bson:"status" json:"status"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
	ApprovedAt     *time.Time    `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
}

// IsApproved reports whether the request is the listing's approved claim.
func (r *Request) IsApproved() bool {
	return r.Status == RequestStatusApproved
}

// SameRequester reports whether the request was made by the given requester,
// matched by user id when both sides have one, otherwise by normalised email.
func (r *Request) SameRequester(requesterID, email string) bool {
	if requesterID != "" && r.RequesterID == requesterID {
		return true
	}
	return email != "" && r.RequesterEmail == email
}

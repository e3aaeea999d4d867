package models

import (
	"github.com/Cedctf/foodbridge-sub000/internal/utils"
)

// Base is embedded by documents keyed by a SixID.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

// GenIDIfEmpty assigns a fresh id when none is set.
func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.ID = utils.NewSixID()
	}
}

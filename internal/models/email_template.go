package models

// EmailTemplate is a notification template stored in the DB, overriding the built-in defaults.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"template_id" json:"template_id"` // e.g. "claim_approved", "listing_claimed"
	Locale     string `bson:"locale" json:"locale"`
	Subject    string `bson:"subject" json:"subject"` // text/template source
	Body       string `bson:"body" json:"body"`       // text/template source
}

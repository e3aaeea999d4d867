package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Cedctf/foodbridge-sub000/internal/db"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
)

// Template ids of the claim notifications.
const (
	TemplateClaimApproved  = "claim_approved"
	TemplateListingClaimed = "listing_claimed"
)

const DefaultLocale = "en-US"

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	TemplateClaimApproved: {
		TemplateID: TemplateClaimApproved,
		Locale:     DefaultLocale,
		Subject:    "Your claim for {{.ListingName}} is approved",
		Body: "Hi {{.RequesterName}},\n\n" +
			"Your request for {{.ListingName}} (quantity {{.Quantity}}) has been approved.\n" +
			"Pick-up address: {{.LocationAddress}}\n" +
			"Please collect it before {{.ExpiryDate}}.\n",
	},
	TemplateListingClaimed: {
		TemplateID: TemplateListingClaimed,
		Locale:     DefaultLocale,
		Subject:    "{{.ListingName}} has been claimed",
		Body: "Good news! {{.RequesterName}} claimed {{.ListingName}}.\n" +
			"You can reach them at {{.RequesterEmail}}{{if .RequesterPhone}} or {{.RequesterPhone}}{{end}}.\n" +
			"{{if .Message}}Their message: {{.Message}}\n{{end}}",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	// Render fills the template's subject and body with data.
	Render(ctx context.Context, templateID, locale string, data any) (subject, body string, err error)
	SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(db *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{db: db}
}

// GetTemplate retrieves an email template by ID and locale
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	if s.db == nil {
		return defaultTemplate(templateID, locale)
	}

	filter := bson.M{"template_id": templateID, "locale": locale}
	var tmpl models.EmailTemplate
	err := s.db.Collection(db.EmailTemplatesCollection).FindOne(ctx, filter).Decode(&tmpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return defaultTemplate(templateID, locale)
		}
		return nil, fmt.Errorf("error retrieving template: %w", err)
	}
	return &tmpl, nil
}

func defaultTemplate(templateID, locale string) (*models.EmailTemplate, error) {
	if tmpl, ok := defaultEmailTemplates[templateID]; ok {
		return &tmpl, nil
	}
	return nil, &NotFoundError{Entity: "email template", ID: templateID + "/" + locale}
}

func (s *EmailTemplateService) Render(ctx context.Context, templateID, locale string, data any) (string, string, error) {
	tmpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}
	subject, err := execute(templateID+".subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(templateID+".body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SaveTemplate saves an email template to the database
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	if tmpl.Locale == "" {
		tmpl.Locale = DefaultLocale
	}
	tmpl.GenIDIfEmpty()

	filter := bson.M{"template_id": tmpl.TemplateID, "locale": tmpl.Locale}
	update := bson.M{
		"$set":         bson.M{"subject": tmpl.Subject, "body": tmpl.Body},
		"$setOnInsert": bson.M{"_id": tmpl.ID},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := s.db.Collection(db.EmailTemplatesCollection).UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}

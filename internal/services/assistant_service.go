package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/models"
)

const (
	maxAssistantHistory = 20
	maxAssistantMessage = 2000
)

const assistantPersona = `You are the FoodBridge assistant. FoodBridge connects people who have surplus food with people who need it.
Help users find listings, explain how claiming works (the first valid claim on a listing is approved automatically) and give short food-safety tips.
Only mention listings that appear in the list below. Keep answers brief.`

// ChatTurn is one message of a conversation with the assistant.
type ChatTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// IAssistantService answers free-text questions about food sharing.
type IAssistantService interface {
	Reply(ctx context.Context, message string, history []ChatTurn) (string, error)
}

// chatCompleter is the part of *openai.Client the assistant uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type assistantService struct {
	client       chatCompleter
	model        string
	listings     IListingQueryService
	contextItems int
	now          func() time.Time
}

// NewAssistantService returns an assistant backed by OpenAI chat completion.
// Without an API key every Reply fails with ErrAssistantDisabled.
func NewAssistantService(cfg *config.Config, listings IListingQueryService) IAssistantService {
	var client chatCompleter
	if cfg.OpenAIAPIKey != "" {
		client = openai.NewClient(cfg.OpenAIAPIKey)
		slog.Info("assistant enabled", "model", cfg.OpenAIModel)
	}
	return newAssistantService(client, cfg.OpenAIModel, listings, cfg.AssistantContextListings)
}

func newAssistantService(client chatCompleter, model string, listings IListingQueryService, contextItems int) *assistantService {
	return &assistantService{
		client:       client,
		model:        model,
		listings:     listings,
		contextItems: contextItems,
		now:          time.Now,
	}
}

func (s *assistantService) Reply(ctx context.Context, message string, history []ChatTurn) (string, error) {
	if s.client == nil {
		return "", ErrAssistantDisabled
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", &ValidationError{Fields: []string{"message"}, Reason: "missing required field"}
	}
	if len(message) > maxAssistantMessage {
		return "", &ValidationError{Fields: []string{"message"}, Reason: "invalid field"}
	}
	if len(history) > maxAssistantHistory {
		history = history[len(history)-maxAssistantHistory:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s.systemPrompt(ctx)})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{Model: s.model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// systemPrompt appends a summary of the most recent available listings.
// A failing listing lookup degrades to a prompt without listings.
func (s *assistantService) systemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString(assistantPersona)
	if s.listings == nil || s.contextItems <= 0 {
		return b.String()
	}

	available, _, err := s.listings.Browse(ctx, BrowseOptions{Sort: SortNewest, Limit: s.contextItems})
	if err != nil {
		slog.Warn("assistant could not load listings", "error", err)
		return b.String()
	}

	b.WriteString("\n\nCurrently available listings:\n")
	if len(available) == 0 {
		b.WriteString("(none)\n")
	}
	now := s.now()
	for _, l := range available {
		fmt.Fprintf(&b, "- %s (%s, quantity %d) at %s, %s\n",
			l.Name, l.FoodType, l.Quantity, l.LocationAddress, freshnessPhrase(models.DaysUntilExpiry(l.ExpiryDate, now)))
	}
	return b.String()
}

func freshnessPhrase(days int) string {
	switch models.ClassifyDays(days) {
	case models.FreshnessExpired:
		return "expired"
	case models.FreshnessExpiresToday:
		return "expires today"
	default:
		if days == 1 {
			return "expires in 1 day"
		}
		return fmt.Sprintf("expires in %d days", days)
	}
}

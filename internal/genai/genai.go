// Package genai provides the suggestion client backed by the OpenAI API.
//
// The client is a thin, stateless adapter: it builds the per-contact prompt,
// performs one chat completion call, and classifies failures as transient or
// permanent. Retry and backoff orchestration belong to the batch processor,
// not to this package.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/reachout/reachout/internal/cadence"
	"github.com/reachout/reachout/internal/models"
)

const systemPrompt = "You are a relationship manager assistant helping users maintain meaningful connections."

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// Error variables for better error handling and testability
var (
	ErrAPIKeyNotSet      = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyCompletion   = errors.New("empty completion content")
)

// SuggestionError wraps a failed model call with its classification.
// Transient errors (HTTP 429/503, network timeouts) may be retried by the
// caller; everything else is permanent for the current run.
type SuggestionError struct {
	StatusCode int // 0 when no HTTP status was observed
	Transient  bool
	Err        error
}

func (e *SuggestionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("suggestion request failed (%s, status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("suggestion request failed (%s): %v", kind, e.Err)
}

func (e *SuggestionError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable suggestion failure.
func IsTransient(err error) bool {
	var se *SuggestionError
	return errors.As(err, &se) && se.Transient
}

// StatusCode extracts the HTTP status code from a suggestion failure.
// The second return value is false when no status was observed.
func StatusCode(err error) (int, bool) {
	var se *SuggestionError
	if errors.As(err, &se) && se.StatusCode != 0 {
		return se.StatusCode, true
	}
	return 0, false
}

// classify maps an upstream error onto the transient/permanent taxonomy.
func classify(err error) *SuggestionError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		return &SuggestionError{
			StatusCode: code,
			Transient:  code == 429 || code == 503,
			Err:        err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SuggestionError{Transient: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &SuggestionError{Transient: true, Err: err}
	}
	return &SuggestionError{Err: err}
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures client construction.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the chat completion service for generating per-contact
// outreach suggestions.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a GenAI client. The API key comes from options or
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// Suggest generates outreach suggestions for a contact. Errors are returned
// as *SuggestionError so callers can distinguish transient from permanent
// failures without inspecting the transport.
func (c *Client) Suggest(ctx context.Context, contact models.Contact, interactions []models.Interaction, ref time.Time) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(contact, interactions, ref)),
		},
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(250),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", classify(ErrNoChoicesReturned)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", classify(ErrEmptyCompletion)
	}
	return content, nil
}

// buildUserPrompt assembles the contact analysis request. The exact wording
// is not contractual; the structure (details, recent activity, rules) is
// kept stable so downstream rendering stays predictable.
func buildUserPrompt(contact models.Contact, interactions []models.Interaction, ref time.Time) string {
	lastContacted := "Never"
	if contact.LastContacted != nil {
		days := int(ref.Sub(*contact.LastContacted).Hours() / 24)
		lastContacted = fmt.Sprintf("%d days ago", days)
	}

	var activity []string
	for _, in := range interactions {
		sentiment := in.Sentiment
		if sentiment == "" {
			sentiment = "neutral"
		}
		activity = append(activity, fmt.Sprintf("- %s: %s (%s)", in.Date.Format("2006-01-02"), in.Type, sentiment))
	}
	recentActivity := "None"
	if len(activity) > 0 {
		recentActivity = strings.Join(activity, "\n")
	}

	suggested := cadence.SuggestMethod(contact.RelationshipLevel, contact.PreferredContactMethod, contact.MissedInteractions)

	lines := []string{
		"Analyze this contact's information and provide 2-3 highly impactful suggestions to strengthen the relationship:",
		"",
		"Contact Details:",
		fmt.Sprintf("- Name: %s", contact.Name),
		fmt.Sprintf("- Last contacted: %s", lastContacted),
		fmt.Sprintf("- Preferred method: %s", orUnspecified(string(contact.PreferredContactMethod))),
		fmt.Sprintf("- Preferred contact frequency: %s", orUnspecified(string(contact.ContactFrequency))),
		fmt.Sprintf("- Social media: %s", orUnspecified(contact.SocialMediaHandle)),
		fmt.Sprintf("- Relationship level: %d/5", contact.RelationshipLevel),
		fmt.Sprintf("- Missed interactions: %d", contact.MissedInteractions),
		fmt.Sprintf("- Suggested channel: %s", suggested),
		fmt.Sprintf("- Notes: %s", orNone(contact.Notes)),
		"",
		"Recent Activity (chronological):",
		recentActivity,
		"",
		"Rules for Suggestions:",
		"1. Must be specific to their context and personal details, never generic advice",
		"2. Must be actionable within 24-48 hours",
		"3. Must clearly contribute to relationship growth",
		"4. Each suggestion should start with \"[type: call/message/social]\"",
		"5. Keep suggestions concise and impactful",
		"6. If no clear opportunities exist, return no suggestions",
		"",
		"Provide ONLY the most impactful 1-2 suggestions, each on a new line starting with \"-\".",
	}
	return strings.Join(lines, "\n")
}

func orUnspecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

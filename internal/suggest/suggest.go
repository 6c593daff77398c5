// Package suggest proposes form fields from a plain-text description of the
// form's purpose. With an API key it asks an OpenAI chat model; without one
// it falls back to a fixed heuristic so the endpoint always answers.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/formsmith/formsmith/internal/model"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// FieldSuggestion is one proposed field, ready to feed into a field update.
type FieldSuggestion struct {
	Type     model.FieldType `json:"type"`
	Label    string          `json:"label"`
	Required bool            `json:"required"`
	Options  []string        `json:"options,omitempty"`
}

type Client struct {
	apiKey     string
	chatModel  string
	apiURL     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the OpenAI endpoint, used by tests.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(apiKey, chatModel string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		chatModel:  chatModel,
		apiURL:     defaultAPIURL,
		httpClient: http.DefaultClient,
	}
	if c.chatModel == "" {
		c.chatModel = "gpt-4o-mini"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You design web form fields. Given a description of a form's purpose,
respond with a JSON array of fields. Each field has "type" (one of text,
email, number, textarea, select, checkbox, radio), "label", "required"
(boolean), and optional "options" (array of strings, for select/radio only).
Respond with the JSON array only, no prose.`

// Suggest returns proposed fields for the described form. When the client is
// unconfigured or the model's reply cannot be parsed, the heuristic fallback
// is returned instead of an error.
func (c *Client) Suggest(ctx context.Context, description string) ([]FieldSuggestion, error) {
	if !c.Configured() {
		return Fallback(description), nil
	}

	body, err := json.Marshal(chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: description},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("model API error: status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Fallback(description), nil
	}

	suggestions := parseSuggestions(cr.Choices[0].Message.Content)
	if len(suggestions) == 0 {
		return Fallback(description), nil
	}
	return suggestions, nil
}

// parseSuggestions extracts the JSON array from the model's reply, tolerating
// markdown code fences, and drops entries with unknown field types.
func parseSuggestions(content string) []FieldSuggestion {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}

	var raw []FieldSuggestion
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil
	}

	var out []FieldSuggestion
	for _, s := range raw {
		if !validFieldType(s.Type) || s.Label == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func validFieldType(t model.FieldType) bool {
	switch t {
	case model.FieldText, model.FieldEmail, model.FieldNumber, model.FieldTextarea,
		model.FieldSelect, model.FieldCheckbox, model.FieldRadio:
		return true
	}
	return false
}

// Fallback proposes fields without a model: a name/email/message skeleton,
// with extras keyed on words in the description.
func Fallback(description string) []FieldSuggestion {
	suggestions := []FieldSuggestion{
		{Type: model.FieldText, Label: "Name", Required: true},
		{Type: model.FieldEmail, Label: "Email", Required: true},
	}

	lower := strings.ToLower(description)
	if strings.Contains(lower, "phone") {
		suggestions = append(suggestions, FieldSuggestion{Type: model.FieldText, Label: "Phone"})
	}
	if strings.Contains(lower, "event") || strings.Contains(lower, "rsvp") {
		suggestions = append(suggestions, FieldSuggestion{
			Type:     model.FieldRadio,
			Label:    "Will you attend?",
			Required: true,
			Options:  []string{"Yes", "No", "Maybe"},
		})
	}
	if strings.Contains(lower, "feedback") || strings.Contains(lower, "survey") {
		suggestions = append(suggestions, FieldSuggestion{
			Type:    model.FieldSelect,
			Label:   "How satisfied are you?",
			Options: []string{"Very satisfied", "Satisfied", "Neutral", "Dissatisfied"},
		})
	}

	suggestions = append(suggestions, FieldSuggestion{Type: model.FieldTextarea, Label: "Message"})
	return suggestions
}

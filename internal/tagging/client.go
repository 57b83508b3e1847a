// Package tagging suggests catalog tags for a dish from its name and
// description using the Gemini API. Suggestions are restricted to tags the
// catalog already knows so downstream encoding never sees a novel tag.
package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

var (
	// ErrEmptyDishName is returned when SuggestTags is called without a dish name.
	ErrEmptyDishName = errors.New("tagging: dish name is empty")
	// ErrNoCandidates is returned when the model response contains no usable text.
	ErrNoCandidates = errors.New("tagging: no candidates in response")
)

const defaultModel = "gemini-2.0-flash"

const promptTemplate = `You label dishes for a food ordering platform in Vietnam.
Given a dish name and description, pick the tags that apply from the allowed
lists below. Reply with a JSON object whose keys are the namespace names and
whose values are arrays of chosen tags. Only use tags from the lists; omit a
namespace when nothing applies.

Allowed tags:
%s
Dish name: %s
Description: %s`

// Generator is the subset of the Gen AI SDK used for tag suggestion.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Suggestion holds suggested tags grouped by namespace. Keys follow the
// catalog's namespace names (food, taste, cooking_method, culture).
type Suggestion map[string][]string

// Client calls the Gemini API to suggest dish tags.
type Client struct {
	generator Generator
	limiter   *rate.Limiter
	model     string
	allowed   map[string][]string
	allowSet  map[string]map[string]struct{}
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the generation model name. Empty uses the default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithGenerator replaces the Gen AI backend, used by tests.
func WithGenerator(g Generator) ClientOption {
	return func(c *Client) {
		c.generator = g
	}
}

// NewClient creates a tag suggestion client. allowedTags maps each namespace
// to the catalog's tag names for it; requestsPerSecond bounds the call rate.
func NewClient(ctx context.Context, apiKey string, allowedTags map[string][]string, requestsPerSecond float64, opts ...ClientOption) (*Client, error) {
	client := &Client{
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		model:    defaultModel,
		allowed:  allowedTags,
		allowSet: buildAllowSet(allowedTags),
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.generator == nil {
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("tagging client: %w", err)
		}
		client.generator = genaiClient.Models
	}

	return client, nil
}

// SuggestTags returns catalog tags that fit the dish. Tags the model invents
// outside the allowed lists are dropped.
func (c *Client) SuggestTags(ctx context.Context, name, description string) (Suggestion, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyDishName
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tagging rate limit: %w", err)
	}

	prompt := fmt.Sprintf(promptTemplate, c.allowedTagsBlock(), name, strings.TrimSpace(description))
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generator.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini tag suggestion: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrNoCandidates
	}

	var raw map[string][]string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("tagging: failed to unmarshal model response: %w", err)
	}

	return c.filter(raw), nil
}

func (c *Client) allowedTagsBlock() string {
	var b strings.Builder
	for _, ns := range namespaceOrder(c.allowed) {
		fmt.Fprintf(&b, "- %s: %s\n", ns, strings.Join(c.allowed[ns], ", "))
	}
	return b.String()
}

func (c *Client) filter(raw map[string][]string) Suggestion {
	out := make(Suggestion)
	for ns, tags := range raw {
		allowed, ok := c.allowSet[ns]
		if !ok {
			continue
		}
		seen := make(map[string]struct{}, len(tags))
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if _, ok := allowed[tag]; !ok {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out[ns] = append(out[ns], tag)
		}
	}
	return out
}

func buildAllowSet(allowed map[string][]string) map[string]map[string]struct{} {
	set := make(map[string]map[string]struct{}, len(allowed))
	for ns, tags := range allowed {
		inner := make(map[string]struct{}, len(tags))
		for _, tag := range tags {
			inner[tag] = struct{}{}
		}
		set[ns] = inner
	}
	return set
}

func namespaceOrder(allowed map[string][]string) []string {
	// Keep the prompt stable across runs.
	order := []string{"food", "taste", "cooking_method", "culture"}
	out := make([]string, 0, len(allowed))
	for _, ns := range order {
		if _, ok := allowed[ns]; ok {
			out = append(out, ns)
		}
	}
	for ns := range allowed {
		known := false
		for _, o := range order {
			if ns == o {
				known = true
				break
			}
		}
		if !known {
			out = append(out, ns)
		}
	}
	return out
}

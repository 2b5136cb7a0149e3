package expand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiGenerator implements Generator against the Gemini API. Clients are
// cached per API key so rotation does not rebuild transport state on every
// attempt.
type GeminiGenerator struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiGenerator constructs an empty generator; clients are created lazily
// on first use of each key.
func NewGeminiGenerator() *GeminiGenerator {
	return &GeminiGenerator{clients: make(map[string]*genai.Client)}
}

// Generate sends the prompt to the given model under the given key and
// returns the response text. Rate-limit responses are reported as
// *RateLimitedError so the rotator can advance to the next key.
func (g *GeminiGenerator) Generate(ctx context.Context, apiKey, model, prompt string) (string, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return "", fmt.Errorf("init genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.9)),
	})
	if err != nil {
		if isRateLimit(err) {
			return "", &RateLimitedError{Model: model, Err: err}
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model %s returned an empty response", model)
	}
	return text, nil
}

func (g *GeminiGenerator) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	g.clients[apiKey] = c
	return c, nil
}

// isRateLimit matches 429 and quota-exhaustion responses from the Gemini API.
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota")
}

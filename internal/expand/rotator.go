// Package expand turns one seed term into a broader list of search terms by
// calling a text-generation provider, rotating across credential/model pairs.
package expand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/metrics"
)

// Generator produces free-form text for a prompt using one credential+model
// pair. Implementations wrap a concrete provider SDK; tests supply fakes.
type Generator interface {
	Generate(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// RateLimitedError marks a provider response that exhausted the credential's
// quota. The rotator abandons the remaining models for that key, since they
// share the quota that was just exhausted.
type RateLimitedError struct {
	Model string
	Err   error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on model %s: %v", e.Model, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ProviderKey is one credential with its ordered list of models to try.
type ProviderKey struct {
	APIKey string
	Models []string
}

// Config controls Rotator behavior.
type Config struct {
	Keys           []ProviderKey
	MaxTerms       int
	AttemptTimeout time.Duration
	PromptTemplate string
}

const (
	defaultMaxTerms       = 100
	defaultAttemptTimeout = 20 * time.Second
	defaultPromptTemplate = "Generate %d unique, broad, and popular search phrases " +
		"for an app catalog to find new and unrated apps related to '%s'. " +
		"Focus on terms that return maximum results. Provide only comma-separated values."
)

// Rotator tries (key, model) pairs in order until one attempt yields terms.
type Rotator struct {
	cfg    Config
	gen    Generator
	logger *zap.Logger
}

// NewRotator constructs a Rotator over the configured provider keys.
func NewRotator(cfg Config, gen Generator, logger *zap.Logger) *Rotator {
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = defaultMaxTerms
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = defaultPromptTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{cfg: cfg, gen: gen, logger: logger}
}

// Expand returns related terms for the seed, always including the seed itself.
// Total provider exhaustion is not an error: the crawl proceeds with the bare
// seed rather than aborting.
func (r *Rotator) Expand(ctx context.Context, seed string) ([]string, error) {
	for ki, key := range r.cfg.Keys {
		for _, model := range key.Models {
			terms, advanceKey, err := r.attempt(ctx, key.APIKey, model, seed)
			if err == nil {
				metrics.ObserveExpansionAttempt("ok")
				return terms, nil
			}
			if ctx.Err() != nil {
				return []string{seed}, nil
			}
			if advanceKey {
				metrics.ObserveExpansionAttempt("rate_limited")
				r.logger.Warn("expansion key rate limited, advancing",
					zap.Int("key_index", ki),
					zap.String("model", model),
				)
				break
			}
			metrics.ObserveExpansionAttempt("error")
			r.logger.Debug("expansion attempt failed, trying next model",
				zap.Int("key_index", ki),
				zap.String("model", model),
				zap.Error(err),
			)
		}
	}
	r.logger.Warn("all expansion providers exhausted, degrading to bare seed",
		zap.String("seed", seed),
	)
	return []string{seed}, nil
}

// attempt runs one (key, model) call. The advanceKey result makes the
// "abandon key on rate limit vs. abandon model otherwise" branch explicit.
func (r *Rotator) attempt(ctx context.Context, apiKey, model, seed string) ([]string, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	prompt := fmt.Sprintf(r.cfg.PromptTemplate, r.cfg.MaxTerms, seed)
	text, err := r.gen.Generate(attemptCtx, apiKey, model, prompt)
	if err != nil {
		var rl *RateLimitedError
		if errors.As(err, &rl) {
			return nil, true, err
		}
		return nil, false, err
	}

	terms := ParseTerms(seed, text, r.cfg.MaxTerms)
	if len(terms) <= 1 {
		return nil, false, fmt.Errorf("response for model %s contained no usable terms", model)
	}
	return terms, false, nil
}

// ParseTerms splits a comma-or-line-delimited response into trimmed, unique
// terms, seed first, capped at max.
func ParseTerms(seed, text string, max int) []string {
	seed = strings.TrimSpace(seed)
	out := []string{seed}
	seen := map[string]struct{}{strings.ToLower(seed): {}}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	for _, f := range fields {
		term := strings.Trim(strings.TrimSpace(f), `"'`)
		if term == "" {
			continue
		}
		lower := strings.ToLower(term)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, term)
		if len(out) >= max {
			break
		}
	}
	return out
}

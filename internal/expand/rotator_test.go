package expand

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeGenerator records every (key, model) attempt and replays scripted results.
type fakeGenerator struct {
	attempts []string
	script   map[string]result
}

type result struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, apiKey, model, _ string) (string, error) {
	call := apiKey + "/" + model
	f.attempts = append(f.attempts, call)
	r, ok := f.script[call]
	if !ok {
		return "", errors.New("unscripted attempt")
	}
	return r.text, r.err
}

func twoKeyConfig() Config {
	return Config{
		Keys: []ProviderKey{
			{APIKey: "key-a", Models: []string{"model-1", "model-2"}},
			{APIKey: "key-b", Models: []string{"model-1"}},
		},
		MaxTerms: 10,
	}
}

func TestExpandFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{script: map[string]result{
		"key-a/model-1": {text: "torch app, flashlight widget, bright light"},
	}}
	r := NewRotator(twoKeyConfig(), gen, nil)

	terms, err := r.Expand(context.Background(), "flashlight")
	require.NoError(t, err)
	require.Equal(t, []string{"flashlight", "torch app", "flashlight widget", "bright light"}, terms)
	require.Equal(t, []string{"key-a/model-1"}, gen.attempts)
}

func TestExpandRateLimitAdvancesKey(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{script: map[string]result{
		"key-a/model-1": {err: &RateLimitedError{Model: "model-1", Err: errors.New("429")}},
		"key-b/model-1": {text: "torch, lantern"},
	}}
	r := NewRotator(twoKeyConfig(), gen, nil)

	terms, err := r.Expand(context.Background(), "flashlight")
	require.NoError(t, err)
	require.Contains(t, terms, "lantern")
	// model-2 under key-a must be skipped: it shares the exhausted quota.
	require.Equal(t, []string{"key-a/model-1", "key-b/model-1"}, gen.attempts)
}

func TestExpandOtherFailureAdvancesModel(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{script: map[string]result{
		"key-a/model-1": {err: errors.New("502 bad gateway")},
		"key-a/model-2": {text: "torch, lantern"},
	}}
	r := NewRotator(twoKeyConfig(), gen, nil)

	terms, err := r.Expand(context.Background(), "flashlight")
	require.NoError(t, err)
	require.Contains(t, terms, "torch")
	require.Equal(t, []string{"key-a/model-1", "key-a/model-2"}, gen.attempts)
}

func TestExpandTotalFailureDegradesToSeed(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{script: map[string]result{
		"key-a/model-1": {err: errors.New("boom")},
		"key-a/model-2": {err: errors.New("boom")},
		"key-b/model-1": {err: errors.New("boom")},
	}}
	r := NewRotator(twoKeyConfig(), gen, nil)

	terms, err := r.Expand(context.Background(), "flashlight")
	require.NoError(t, err)
	require.Equal(t, []string{"flashlight"}, terms)
	require.Len(t, gen.attempts, 3)
}

func TestExpandNoKeysDegradesToSeed(t *testing.T) {
	t.Parallel()

	r := NewRotator(Config{}, &fakeGenerator{}, nil)
	terms, err := r.Expand(context.Background(), "flashlight")
	require.NoError(t, err)
	require.Equal(t, []string{"flashlight"}, terms)
}

func TestParseTermsDedupesTrimsAndCaps(t *testing.T) {
	t.Parallel()

	text := " torch , Torch, 'lantern',\nbright light,, torch app , extra"
	terms := ParseTerms("flashlight", text, 5)
	require.Equal(t, []string{"flashlight", "torch", "lantern", "bright light", "torch app"}, terms)
	require.LessOrEqual(t, len(terms), 5)
}

func TestParseTermsKeepsSeedWhenRepeated(t *testing.T) {
	t.Parallel()

	terms := ParseTerms("flashlight", "flashlight, torch", 10)
	require.Equal(t, []string{"flashlight", "torch"}, terms)
}

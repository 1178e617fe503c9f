// Package narrative is the boundary to the external language model. The
// model is opaque text-to-text here: it receives a redacted record and
// returns a plain-language narrative. Everything about narrative quality is
// the model's problem; integrity checks on its output live in the audit
// builder, not here.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/sarforge/internal/audit"
)

var (
	// ErrModelUnavailable marks a transient failure reaching the model.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout marks a model call that exceeded its bounded
	// timeout.
	ErrModelTimeout = errors.New("model timeout")

	// ErrEmptyNarrative is returned when the model produced no usable
	// text. Surfaced as a failed generation, matching the upstream 502.
	ErrEmptyNarrative = errors.New("model returned empty narrative")
)

// Generator is the narrative-generation contract the pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, redactedJSON string) (string, audit.ModelMetadata, error)
}

// Options configures a Client.
type Options struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// RequestsPerSecond bounds outbound model calls; zero disables the
	// limiter.
	RequestsPerSecond float64
}

// Client generates SAR narratives through a langchaingo model.
type Client struct {
	llm         llms.Model
	provider    string
	model       string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewClient builds a client for the configured provider, mirroring the
// provider set the connector layer supports elsewhere in the org: openai,
// gemini, claude, ollama.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var model llms.Model
	var err error

	switch strings.ToLower(opts.Provider) {
	case "openai":
		oo := []openai.Option{openai.WithToken(opts.APIKey), openai.WithModel(opts.Model)}
		if opts.BaseURL != "" {
			oo = append(oo, openai.WithBaseURL(opts.BaseURL))
		}
		model, err = openai.New(oo...)
	case "gemini":
		model, err = googleai.New(ctx, googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(opts.Model))
	case "claude":
		model, err = anthropic.New(anthropic.WithToken(opts.APIKey), anthropic.WithModel(opts.Model))
	case "ollama":
		serverURL := opts.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:11434"
		}
		model, err = ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(opts.Model))
	default:
		return nil, fmt.Errorf("unsupported model provider: %q", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", opts.Provider, err)
	}

	c := &Client{
		llm:         model,
		provider:    strings.ToLower(opts.Provider),
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
	}
	if c.timeout <= 0 {
		c.timeout = 120 * time.Second
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Generate produces a narrative for a redacted record. The prompt instructs
// the model to keep placeholder tokens verbatim and invent nothing; whether
// it obeyed is verified downstream by the audit builder.
func (c *Client) Generate(ctx context.Context, redactedJSON string) (string, audit.ModelMetadata, error) {
	meta := audit.ModelMetadata{
		Provider:    c.provider,
		Model:       c.model,
		Temperature: c.temperature,
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", meta, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	response, err := llms.GenerateFromSinglePrompt(callCtx, c.llm, buildPrompt(redactedJSON),
		llms.WithTemperature(c.temperature))
	meta.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", meta, fmt.Errorf("%w after %s", ErrModelTimeout, c.timeout)
		}
		return "", meta, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	narrative, err := extractNarrative(response)
	if err != nil {
		return "", meta, err
	}

	log.Debug().Str("provider", c.provider).Str("model", c.model).
		Int64("duration_ms", meta.DurationMs).Int("narrative_len", len(narrative)).
		Msg("narrative generated")
	return narrative, meta, nil
}

func buildPrompt(redactedJSON string) string {
	var b strings.Builder
	b.WriteString("You are an AML compliance analyst writing lawful SAR summaries. ")
	b.WriteString("Output must be plain English with no markdown and no line breaks. ")
	b.WriteString("Write a concise SAR narrative (<=300 words) from the JSON below. ")
	b.WriteString("Include who, what, when, where, how, why, detection source, and amounts. ")
	b.WriteString("If a value is shown as a bracketed placeholder such as [EMAIL:ab12cd], ")
	b.WriteString("reproduce it exactly; never reword, expand, or invent placeholders. ")
	b.WriteString("Use ONLY the information provided; if something is missing, state 'Information unavailable.' ")
	b.WriteString("End with one sentence stating the report date, amount (if any), and main entity. ")
	b.WriteString("Respond with a JSON object of the form {\"narrative\": \"...\"} and nothing else.\n\n")
	b.WriteString("JSON Input:\n")
	b.WriteString(redactedJSON)
	return b.String()
}

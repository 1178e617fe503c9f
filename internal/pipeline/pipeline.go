// Package pipeline wires the redaction core to its external collaborators:
// raw record in, redacted record through the model, audited artifact out.
// Raw sensitive values stop existing past the redaction step; everything
// that crosses the trust boundary afterwards carries tokens only.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/logging"
	"github.com/sarforge/internal/narrative"
	"github.com/sarforge/internal/record"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/retry"
	"github.com/sarforge/internal/store"
	"github.com/sarforge/internal/vault"
)

// Result is what the caller gets back for a processed case. The narrative
// contains placeholder tokens only, never raw values.
type Result struct {
	Status     string `json:"status"`
	CaseID     string `json:"case_id"`
	Identifier string `json:"identifier"`
	Narrative  string `json:"narrative"`
}

// Pipeline processes cases end to end. Each case gets its own vault; the
// pipeline itself holds no per-case state and is safe for concurrent use.
type Pipeline struct {
	redactor   *redactor.Redactor
	builder    *audit.Builder
	generator  narrative.Generator
	artifacts  store.ArtifactStore
	vaults     store.VaultStore
	masterKey  []byte
	hashLength int
	modelRetry retry.Config
	storeRetry retry.Config
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithVaultPersistence enables sealing each case vault under masterKey and
// saving it through the side-channel store. Without this option the vault
// is discarded when the case's artifact is finalized.
func WithVaultPersistence(vaults store.VaultStore, masterKey []byte) Option {
	return func(p *Pipeline) {
		p.vaults = vaults
		p.masterKey = masterKey
	}
}

// WithHashLength sets the minted token hash width.
func WithHashLength(n int) Option {
	return func(p *Pipeline) { p.hashLength = n }
}

// WithRetryConfigs overrides the model and storage retry policies.
func WithRetryConfigs(model, storage retry.Config) Option {
	return func(p *Pipeline) {
		p.modelRetry = model
		p.storeRetry = storage
	}
}

// New assembles a pipeline.
func New(red *redactor.Redactor, builder *audit.Builder, gen narrative.Generator, artifacts store.ArtifactStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		redactor:   red,
		builder:    builder,
		generator:  gen,
		artifacts:  artifacts,
		hashLength: 6,
		modelRetry: retry.ModelConfig(),
		storeRetry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one case through redact → narrate → build → store. The
// caller's context is honored at the checkpoints around external calls;
// redaction itself is never aborted mid-walk. Any data-integrity failure
// propagates unmodified and leaves nothing persisted.
func (p *Pipeline) Process(ctx context.Context, rawRecord []byte) (Result, error) {
	rec, err := record.Parse(rawRecord)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", redactor.ErrMalformedRecord, err)
	}

	caseID := ExtractCaseID(rec)
	logger := logging.CaseLogger(caseID)

	v, err := vault.New(caseID, vault.WithHashLength(p.hashLength))
	if err != nil {
		return Result{}, err
	}

	redacted, subs, err := p.redactor.Redact(rec, v)
	if err != nil {
		logger.Warn().Err(err).Msg("redaction rejected record")
		return Result{}, err
	}
	logger.Info().Int("substitutions", len(subs)).Int("distinct_values", v.Len()).
		Msg("record redacted")

	redactedJSON, err := redacted.MarshalJSON()
	if err != nil {
		return Result{}, fmt.Errorf("encode redacted record: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var text string
	var meta audit.ModelMetadata
	genResult := retry.Do(ctx, p.modelRetry, logger, func() error {
		var genErr error
		text, meta, genErr = p.generator.Generate(ctx, string(redactedJSON))
		return genErr
	})
	if !genResult.Success {
		return Result{}, fmt.Errorf("generate narrative: %w", genResult.LastError)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	artifact, err := p.builder.Build(caseID, redacted, subs, text, meta, v)
	if err != nil {
		logger.Error().Err(err).Msg("artifact rejected")
		return Result{}, err
	}

	if p.vaults != nil {
		sealed, err := v.Seal(p.masterKey)
		if err != nil {
			return Result{}, fmt.Errorf("seal vault: %w", err)
		}
		saveResult := retry.Do(ctx, p.storeRetry, logger, func() error {
			return p.vaults.SaveSealed(ctx, sealed)
		})
		if !saveResult.Success {
			return Result{}, fmt.Errorf("persist vault: %w", saveResult.LastError)
		}
	}

	var location string
	storeResult := retry.Do(ctx, p.storeRetry, logger, func() error {
		var storeErr error
		location, storeErr = p.artifacts.Store(ctx, artifact)
		return storeErr
	})
	if !storeResult.Success {
		// A sealed vault without its artifact is partial state; take it
		// back out of the side channel before surfacing the failure.
		if p.vaults != nil {
			if err := p.vaults.DeleteSealed(ctx, caseID); err != nil {
				logger.Warn().Err(err).Msg("failed to remove orphaned sealed vault")
			}
		}
		return Result{}, fmt.Errorf("store artifact: %w", storeResult.LastError)
	}

	logger.Info().Str("status", "ok").Str("key", location).Msg("case processed")
	return Result{
		Status:     "ok",
		CaseID:     caseID,
		Identifier: location,
		Narrative:  artifact.Narrative,
	}, nil
}

// ExtractCaseID pulls the case identifier off the raw record before
// redaction runs, falling back to NA the way the inbound contract always
// has.
func ExtractCaseID(rec record.Value) string {
	if rec.Kind() != record.KindObject {
		return "NA"
	}
	f, ok := rec.Field("case_id")
	if !ok {
		return "NA"
	}
	switch f.Kind() {
	case record.KindString:
		if f.StringValue() != "" {
			return f.StringValue()
		}
	case record.KindNumber:
		return string(f.NumberValue())
	}
	return "NA"
}

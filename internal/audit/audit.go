// Package audit assembles the persisted artifact for a finished case and
// enforces the pipeline's post-conditions: no raw sensitive value may be
// embedded in the redacted payload or the narrative, and the narrative may
// not reference tokens the redaction never produced.
package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sarforge/internal/catalog"
	"github.com/sarforge/internal/record"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/vault"
)

var (
	// ErrResidualSensitiveData means redaction missed something: a
	// substring of the redacted record or narrative still matches a
	// catalog rule. The artifact is refused, never patched.
	ErrResidualSensitiveData = errors.New("residual sensitive data detected")

	// ErrNarrativeIntegrityViolation means the narrative contains a
	// placeholder token absent from the case's substitution set — a sign
	// of model hallucination or prompt leakage.
	ErrNarrativeIntegrityViolation = errors.New("narrative integrity violation")
)

// ModelMetadata describes the model invocation that produced a narrative.
type ModelMetadata struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
}

// Artifact is the immutable audit record for one case. The token vault is
// deliberately not part of it; if persisted at all, the vault travels sealed
// through a separate side channel keyed by case id.
type Artifact struct {
	ID             string                  `json:"-"`
	CaseID         string                  `json:"case_id"`
	GeneratedAt    time.Time               `json:"generated_at"`
	RedactedRecord record.Value            `json:"redacted_record"`
	Narrative      string                  `json:"narrative"`
	ModelMetadata  ModelMetadata           `json:"model_metadata"`
	Substitutions  []redactor.Substitution `json:"substitutions"`
}

// Key returns the storage key for the artifact, following the
// sar-output/<case>/<timestamp>.json layout with a per-invocation unique
// suffix.
func (a Artifact) Key() string {
	return fmt.Sprintf("sar-output/%s/%s_%s.json", a.CaseID, a.GeneratedAt.UTC().Format("20060102T150405Z"), a.ID)
}

// Builder validates and assembles artifacts. It shares the read-only
// catalog with the redactor so both sides agree on what counts as residual
// sensitive data.
type Builder struct {
	catalog *catalog.Catalog
	now     func() time.Time
	newID   func() string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithClock fixes the timestamp source, used in tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder returns a Builder over the given catalog.
func NewBuilder(cat *catalog.Catalog, opts ...BuilderOption) *Builder {
	b := &Builder{
		catalog: cat,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build checks the post-conditions and, on success, produces an immutable
// artifact with a UTC timestamp and a per-invocation unique id. Integrity
// failures are hard stops: the caller must not persist or return anything
// for the case.
func (b *Builder) Build(caseID string, redacted record.Value, subs []redactor.Substitution, narrative string, meta ModelMetadata, v *vault.Vault) (Artifact, error) {
	issued := make(map[string]bool, len(subs))
	for _, sub := range subs {
		issued[sub.Token] = true
	}

	for _, token := range catalog.TokenPattern().FindAllString(narrative, -1) {
		if issued[token] {
			continue
		}
		// Even a token the vault minted counts as unexplained if it
		// never made it into the substitution set for this record.
		return Artifact{}, fmt.Errorf("%w: narrative references unknown token %s", ErrNarrativeIntegrityViolation, token)
	}

	if b.catalog.HasMatch(narrative) {
		return Artifact{}, fmt.Errorf("%w: in narrative", ErrResidualSensitiveData)
	}
	for path, s := range redacted.Strings() {
		if b.catalog.HasMatch(s) {
			return Artifact{}, fmt.Errorf("%w: at %s", ErrResidualSensitiveData, path)
		}
	}

	return Artifact{
		ID:             b.newID(),
		CaseID:         caseID,
		GeneratedAt:    b.now().UTC(),
		RedactedRecord: redacted,
		Narrative:      narrative,
		ModelMetadata:  meta,
		Substitutions:  subs,
	}, nil
}

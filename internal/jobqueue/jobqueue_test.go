package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/catalog"
	"github.com/sarforge/internal/narrative"
	"github.com/sarforge/internal/pipeline"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/retry"
	"github.com/sarforge/internal/store"
)

type scriptedGenerator struct {
	text string
	err  error
}

func (g scriptedGenerator) Generate(context.Context, string) (string, audit.ModelMetadata, error) {
	return g.text, audit.ModelMetadata{Provider: "fake", Model: "fake-1"}, g.err
}

func workerFor(gen scriptedGenerator) *CaseWorker {
	cat := catalog.MustNew()
	fast := retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
	p := pipeline.New(redactor.New(cat), audit.NewBuilder(cat), gen, store.NewMemory(),
		pipeline.WithRetryConfigs(fast, fast))
	return &CaseWorker{pipeline: p}
}

func TestWorkProcessesCase(t *testing.T) {
	w := workerFor(scriptedGenerator{text: "Routine activity observed."})
	job := &river.Job[CaseJobArgs]{Args: CaseJobArgs{
		CaseID: "CASE-31",
		Record: []byte(`{"case_id":"CASE-31","summary":"Flagged during review"}`),
	}}
	assert.NoError(t, w.Work(context.Background(), job))
}

func TestWorkCancelsPermanentFailures(t *testing.T) {
	w := workerFor(scriptedGenerator{text: "unused"})
	job := &river.Job[CaseJobArgs]{Args: CaseJobArgs{
		CaseID: "CASE-32",
		Record: []byte(`{"case_id":"CASE-32"}`),
	}}

	err := w.Work(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), redactor.ErrMalformedRecord.Error())
}

func TestWorkReturnsTransientFailuresForRetry(t *testing.T) {
	w := workerFor(scriptedGenerator{err: narrative.ErrModelUnavailable})
	job := &river.Job[CaseJobArgs]{Args: CaseJobArgs{
		CaseID: "CASE-33",
		Record: []byte(`{"case_id":"CASE-33","summary":"Flagged during review"}`),
	}}

	err := w.Work(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, narrative.ErrModelUnavailable), "got %v", err)
}

func TestCaseJobDefaults(t *testing.T) {
	args := CaseJobArgs{}
	assert.Equal(t, "case_process", args.Kind())
	assert.Equal(t, 3, args.InsertOpts().MaxAttempts)
}

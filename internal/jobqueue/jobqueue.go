// Package jobqueue runs case processing asynchronously on a River job
// queue. Each job carries the raw inbound record and is processed by the
// same pipeline the synchronous path uses; since redaction is deterministic,
// a retried job reproduces the same redacted record and tokens.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/pipeline"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/vault"
)

// CaseJobArgs are the arguments for one queued case.
type CaseJobArgs struct {
	CaseID string          `json:"case_id"`
	Record json.RawMessage `json:"record"`
}

// Kind returns the job kind for River.
func (CaseJobArgs) Kind() string { return "case_process" }

// InsertOpts bounds retries at the queue level; transient model and storage
// failures already get in-process backoff inside the pipeline.
func (CaseJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

// CaseWorker processes queued cases.
type CaseWorker struct {
	river.WorkerDefaults[CaseJobArgs]
	pipeline *pipeline.Pipeline
}

// Work runs the pipeline for one case. Malformed input, unsupported
// categories and integrity violations are permanent: the job is cancelled
// instead of retried, since re-running deterministic redaction on the same
// input cannot change the outcome.
func (w *CaseWorker) Work(ctx context.Context, job *river.Job[CaseJobArgs]) error {
	result, err := w.pipeline.Process(ctx, job.Args.Record)
	if err != nil {
		if errors.Is(err, redactor.ErrMalformedRecord) ||
			errors.Is(err, vault.ErrUnsupportedCategory) ||
			errors.Is(err, audit.ErrResidualSensitiveData) ||
			errors.Is(err, audit.ErrNarrativeIntegrityViolation) {
			return river.JobCancel(err)
		}
		return err
	}

	log.Info().Str("case", result.CaseID).Str("key", result.Identifier).
		Msg("queued case processed")
	return nil
}

// Queue manages the River client and its workers.
type Queue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// Config tunes the queue.
type Config struct {
	MaxWorkers int
}

// DefaultConfig returns the default queue sizing.
func DefaultConfig() Config {
	return Config{MaxWorkers: 4}
}

// New builds a queue over an existing pool, registering the case worker.
func New(pool *pgxpool.Pool, p *pipeline.Pipeline, cfg Config) (*Queue, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &CaseWorker{pipeline: p})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}

	return &Queue{client: client, pool: pool}, nil
}

// Start launches the queue workers.
func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop drains and stops the queue workers.
func (q *Queue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// EnqueueCase queues a raw record for asynchronous processing and returns
// the case id it was queued under.
func (q *Queue) EnqueueCase(ctx context.Context, caseID string, rawRecord []byte) error {
	_, err := q.client.Insert(ctx, CaseJobArgs{CaseID: caseID, Record: rawRecord}, nil)
	if err != nil {
		return fmt.Errorf("queue case %s: %w", caseID, err)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/record"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/vault"
)

// Postgres backs ArtifactStore and VaultStore with two tables. Artifacts are
// stored as the serialized JSON payload plus the columns needed for lookup;
// vaults only ever touch the table as sealed ciphertext.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool for the given database URL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Pool exposes the pool for components that share it, such as the job queue.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Migrate creates the artifact and vault tables if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sar_artifacts (
			key TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sar_artifacts_case_id_idx ON sar_artifacts (case_id)`,
		`CREATE TABLE IF NOT EXISTS case_vaults (
			case_id TEXT PRIMARY KEY,
			payload BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate storage: %w", err)
		}
	}
	return nil
}

type artifactPayload struct {
	CaseID         string                  `json:"case_id"`
	GeneratedAt    time.Time               `json:"generated_at"`
	RedactedRecord json.RawMessage         `json:"redacted_record"`
	Narrative      string                  `json:"narrative"`
	ModelMetadata  audit.ModelMetadata     `json:"model_metadata"`
	Substitutions  []redactor.Substitution `json:"substitutions"`
}

// Store implements ArtifactStore.
func (p *Postgres) Store(ctx context.Context, artifact audit.Artifact) (string, error) {
	recordJSON, err := artifact.RedactedRecord.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode redacted record: %w", err)
	}
	payload, err := json.Marshal(artifactPayload{
		CaseID:         artifact.CaseID,
		GeneratedAt:    artifact.GeneratedAt,
		RedactedRecord: recordJSON,
		Narrative:      artifact.Narrative,
		ModelMetadata:  artifact.ModelMetadata,
		Substitutions:  artifact.Substitutions,
	})
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	key := artifact.Key()
	_, err = p.pool.Exec(ctx,
		`INSERT INTO sar_artifacts (key, case_id, generated_at, payload) VALUES ($1, $2, $3, $4)`,
		key, artifact.CaseID, artifact.GeneratedAt, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return key, nil
}

// ListByCase implements ArtifactStore.
func (p *Postgres) ListByCase(ctx context.Context, caseID string) ([]audit.Artifact, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM sar_artifacts WHERE case_id = $1 ORDER BY generated_at ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []audit.Artifact
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		var payload artifactPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		rec, err := record.Parse(payload.RedactedRecord)
		if err != nil {
			return nil, fmt.Errorf("decode redacted record: %w", err)
		}
		out = append(out, audit.Artifact{
			CaseID:         payload.CaseID,
			GeneratedAt:    payload.GeneratedAt,
			RedactedRecord: rec,
			Narrative:      payload.Narrative,
			ModelMetadata:  payload.ModelMetadata,
			Substitutions:  payload.Substitutions,
		})
	}
	return out, rows.Err()
}

// SaveSealed implements VaultStore.
func (p *Postgres) SaveSealed(ctx context.Context, sealed vault.Sealed) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO case_vaults (case_id, payload, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (case_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		sealed.CaseID, sealed.Payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteSealed implements VaultStore.
func (p *Postgres) DeleteSealed(ctx context.Context, caseID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM case_vaults WHERE case_id = $1`, caseID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// LoadSealed implements VaultStore.
func (p *Postgres) LoadSealed(ctx context.Context, caseID string) (vault.Sealed, error) {
	sealed := vault.Sealed{CaseID: caseID}
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM case_vaults WHERE case_id = $1`, caseID).Scan(&sealed.Payload)
	if err == pgx.ErrNoRows {
		return vault.Sealed{}, ErrNotFound
	}
	if err != nil {
		return vault.Sealed{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return sealed, nil
}

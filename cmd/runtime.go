package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/catalog"
	"github.com/sarforge/internal/config"
	"github.com/sarforge/internal/narrative"
	"github.com/sarforge/internal/pipeline"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/store"
)

// buildPipeline assembles the processing pipeline from configuration. The
// catalog is constructed once here and shared read-only by the redactor and
// the audit builder.
func buildPipeline(ctx context.Context, cfg *config.Config, artifacts store.ArtifactStore, vaults store.VaultStore) (*pipeline.Pipeline, error) {
	cat, err := catalog.New()
	if err != nil {
		return nil, fmt.Errorf("build pattern catalog: %w", err)
	}

	var redOpts []redactor.Option
	if len(cfg.Redaction.RequiredFields) > 0 {
		redOpts = append(redOpts, redactor.WithRequiredFields(cfg.Redaction.RequiredFields...))
	}
	if len(cfg.Redaction.Allowlist) > 0 {
		redOpts = append(redOpts, redactor.WithAllowlist(cfg.Redaction.Allowlist...))
	}
	red := redactor.New(cat, redOpts...)

	client, err := narrative.NewClient(ctx, narrative.Options{
		Provider:          cfg.Model.Provider,
		APIKey:            cfg.Model.APIKey,
		BaseURL:           cfg.Model.BaseURL,
		Model:             cfg.Model.Name,
		Temperature:       cfg.Model.Temperature,
		Timeout:           time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Model.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create narrative client: %w", err)
	}

	pipeOpts := []pipeline.Option{pipeline.WithHashLength(cfg.Redaction.HashLength)}
	if cfg.Storage.PersistVault && vaults != nil {
		pipeOpts = append(pipeOpts, pipeline.WithVaultPersistence(vaults, []byte(cfg.Redaction.MasterKey)))
	}

	return pipeline.New(red, audit.NewBuilder(cat), client, artifacts, pipeOpts...), nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sarforge/internal/config"
	"github.com/sarforge/internal/logging"
	"github.com/sarforge/internal/store"
)

// GenerateCommand returns the one-shot generation command: read a case
// record from a file, run it through the full pipeline, and print the
// result. Artifacts go to Postgres when configured, otherwise they stay
// in-process and only the result is printed.
func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate a SAR narrative for a single case record",
		ArgsUsage: "RECORD_FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "print-artifact",
				Usage: "Print the full audit artifact instead of just the result",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one record file argument")
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

			raw, err := os.ReadFile(c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to read record file: %w", err)
			}

			ctx := context.Background()

			var artifacts store.ArtifactStore
			var vaults store.VaultStore
			mem := store.NewMemory()
			if cfg.Storage.DatabaseURL != "" {
				pg, err := store.Connect(ctx, cfg.Storage.DatabaseURL)
				if err != nil {
					return fmt.Errorf("failed to connect storage: %w", err)
				}
				defer pg.Close()
				if err := pg.Migrate(ctx); err != nil {
					return err
				}
				artifacts, vaults = pg, pg
			} else {
				artifacts, vaults = mem, mem
			}

			pipe, err := buildPipeline(ctx, cfg, artifacts, vaults)
			if err != nil {
				return err
			}

			result, err := pipe.Process(ctx, raw)
			if err != nil {
				return fmt.Errorf("case processing failed: %w", err)
			}

			if c.Bool("print-artifact") {
				stored, err := artifacts.ListByCase(ctx, result.CaseID)
				if err == nil && len(stored) > 0 {
					enc, err := json.MarshalIndent(stored[len(stored)-1], "", "  ")
					if err == nil {
						fmt.Println(string(enc))
						return nil
					}
				}
			}

			enc, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(enc))
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/sarforge/internal/config"
	"github.com/sarforge/internal/store"
	"github.com/sarforge/internal/vault"
)

// VaultCommand returns the audit-side vault tooling: opening a persisted
// sealed vault to resolve placeholder tokens back to their raw values. This
// is the only path in the system that re-identifies, and it requires both
// storage access and the deployment master key.
func VaultCommand() *cli.Command {
	return &cli.Command{
		Name:  "vault",
		Usage: "Inspect sealed case vaults for audit",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Decrypt and print the token mapping for a case",
				ArgsUsage: "CASE_ID",
				Action:    runVaultShow,
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a single token for a case",
				ArgsUsage: "CASE_ID TOKEN",
				Action:    runVaultResolve,
			},
		},
	}
}

func openCaseVault(c *cli.Context, caseID string) (*vault.Vault, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.DatabaseURL == "" {
		return nil, fmt.Errorf("storage database_url is required for vault inspection")
	}
	if cfg.Redaction.MasterKey == "" {
		return nil, fmt.Errorf("redaction master_key is required for vault inspection")
	}

	ctx := context.Background()
	pg, err := store.Connect(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	defer pg.Close()

	sealed, err := pg.LoadSealed(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vault for case %s: %w", caseID, err)
	}

	v, err := vault.Open(sealed, []byte(cfg.Redaction.MasterKey))
	if err != nil {
		return nil, fmt.Errorf("failed to open vault for case %s: %w", caseID, err)
	}
	return v, nil
}

func runVaultShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one case id argument")
	}
	caseID := c.Args().First()

	v, err := openCaseVault(c, caseID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tCATEGORY\tRAW VALUE")
	for _, entry := range v.Entries() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Token, entry.Category, entry.Raw)
	}
	return w.Flush()
}

func runVaultResolve(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected case id and token arguments")
	}
	caseID, token := c.Args().Get(0), c.Args().Get(1)

	v, err := openCaseVault(c, caseID)
	if err != nil {
		return err
	}

	raw, ok := v.RawFor(token)
	if !ok {
		return fmt.Errorf("token %s was not issued for case %s", token, caseID)
	}
	fmt.Println(raw)
	return nil
}

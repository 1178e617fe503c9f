package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sarforge/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "sarforge",
		Usage:   "Deterministic redaction and SAR narrative generation pipeline",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.GenerateCommand(),
			cmd.VaultCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

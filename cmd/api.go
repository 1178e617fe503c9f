package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/sarforge/internal/api"
	"github.com/sarforge/internal/config"
	"github.com/sarforge/internal/jobqueue"
	"github.com/sarforge/internal/logging"
	"github.com/sarforge/internal/store"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the sarforge API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server",
			},
			&cli.BoolFlag{
				Name:  "queue",
				Usage: "Enable asynchronous case processing workers",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

			port := cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			ctx := context.Background()
			if cfg.Storage.DatabaseURL == "" {
				return fmt.Errorf("storage database_url is required for the API server")
			}
			pg, err := store.Connect(ctx, cfg.Storage.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect storage: %w", err)
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return err
			}

			pipe, err := buildPipeline(ctx, cfg, pg, pg)
			if err != nil {
				return err
			}

			var serverOpts []api.ServerOption
			if c.Bool("queue") {
				queue, err := jobqueue.New(pg.Pool(), pipe, jobqueue.DefaultConfig())
				if err != nil {
					return fmt.Errorf("failed to create job queue: %w", err)
				}
				if err := queue.Start(ctx); err != nil {
					return fmt.Errorf("failed to start job queue: %w", err)
				}
				defer queue.Stop(ctx)
				serverOpts = append(serverOpts, api.WithQueue(queue))
			}

			fmt.Printf("Starting sarforge API server on port %d...\n", port)
			server := api.NewServer(port, pipe, pg, serverOpts...)
			return server.Start()
		},
	}
}

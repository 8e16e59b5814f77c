package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ghkit/ghkit/pkg/ghapi"
)

// ParallelCommand creates the parallel command
func ParallelCommand() *cli.Command {
	return &cli.Command{
		Name:      "parallel",
		Usage:     "Run several queries against one endpoint concurrently",
		ArgsUsage: "<query> [query...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Search endpoint",
				Value: "repositories",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of formatted text",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			queries := c.Args().Slice()
			if len(queries) == 0 {
				return fmt.Errorf("usage: ghkit parallel [flags] <query> [query...]")
			}

			endpoint, err := ghapi.ParseEndpoint(c.String("endpoint"))
			if err != nil {
				return err
			}
			return runParallel(ctx, c.String("config"), endpoint, queries, c.Bool("json"))
		},
	}
}

func runParallel(ctx context.Context, configPath string, endpoint ghapi.Endpoint, queries []string, asJSON bool) error {
	client, err := buildClient(configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	outcomes := client.ParallelSearch(ctx, endpoint, queries)

	failures := 0
	for i, outcome := range outcomes {
		fmt.Printf("\n=== %s ===\n", queries[i])
		if outcome.Err != nil {
			failures++
			fmt.Printf("error: %v\n", outcome.Err)
			continue
		}
		if err := printResult(outcome.Data, asJSON); err != nil {
			return err
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d queries failed", failures, len(queries))
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ghkit/ghkit/pkg/ghapi"
)

// MultiCommand creates the multi command
func MultiCommand() *cli.Command {
	return &cli.Command{
		Name:      "multi",
		Usage:     "Run one query against several endpoints concurrently",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "endpoint",
				Usage: "Endpoint to include (repeatable; default repositories, code, issues, users)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of formatted text",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.Args().First()
			if query == "" {
				return fmt.Errorf("usage: ghkit multi [flags] <query>")
			}

			names := c.StringSlice("endpoint")
			if len(names) == 0 {
				names = []string{"repositories", "code", "issues", "users"}
			}
			endpoints := make([]ghapi.Endpoint, 0, len(names))
			for _, name := range names {
				endpoint, err := ghapi.ParseEndpoint(name)
				if err != nil {
					return err
				}
				endpoints = append(endpoints, endpoint)
			}

			return runMulti(ctx, c.String("config"), query, endpoints, c.Bool("json"))
		},
	}
}

func runMulti(ctx context.Context, configPath string, query string, endpoints []ghapi.Endpoint, asJSON bool) error {
	client, err := buildClient(configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	outcomes := client.MultiEndpointSearch(ctx, query, endpoints)

	failures := 0
	for _, endpoint := range endpoints {
		outcome := outcomes[endpoint]
		fmt.Printf("\n=== %s ===\n", endpoint)
		if outcome.Err != nil {
			failures++
			fmt.Printf("error: %v\n", outcome.Err)
			continue
		}
		if err := printResult(outcome.Data, asJSON); err != nil {
			return err
		}
	}

	if failures == len(endpoints) {
		return fmt.Errorf("every endpoint failed")
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ghkit/ghkit/pkg/breaker"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/search"
)

// HealthCommand creates the health command
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Probe the API and report client health",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of formatted text",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runHealth(ctx, c.String("config"), c.Bool("json"))
		},
	}
}

func runHealth(ctx context.Context, configPath string, asJSON bool) error {
	client, err := buildClient(configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	// One cheap probe so the report reflects a live API exchange, not
	// just idle counters.
	_, probeErr := client.SearchRepositories(ctx, search.Params{Query: "ghkit", PerPage: 1})

	health := client.Health()
	metrics := client.Metrics()

	if asJSON {
		return printJSON(struct {
			Health  search.Health  `json:"health"`
			Metrics search.Metrics `json:"metrics"`
		}{health, metrics})
	}

	fmt.Printf("Status: %s\n", health.Status)
	if probeErr != nil {
		fmt.Printf("Probe:  failed: %v\n", probeErr)
	} else {
		fmt.Printf("Probe:  ok\n")
	}

	if len(health.Breakers) > 0 {
		fmt.Println("\nCircuit breakers:")
		for _, endpoint := range ghapi.Endpoints {
			status, ok := health.Breakers[endpoint]
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-13s %s", endpoint, status.State)
			if status.State != breaker.StateClosed && status.ConsecutiveFailures > 0 {
				line += fmt.Sprintf(" (%d consecutive failures)", status.ConsecutiveFailures)
			}
			fmt.Println(line)
		}
	}

	if len(metrics.RateLimits) > 0 {
		fmt.Println("\nRate limits:")
		for _, status := range metrics.RateLimits {
			fmt.Printf("  %s search %d/%d", status.Token, status.SearchRemaining, status.SearchLimit)
			if !status.SearchResetAt.IsZero() {
				fmt.Printf(" (resets %s)", formatTime(status.SearchResetAt))
			}
			fmt.Println()
		}
	}

	fmt.Printf("\nRequests: %d (%.0f%% success)\n", metrics.TotalRequests, metrics.SuccessRate*100)
	if metrics.CacheStats.Size > 0 || metrics.CacheStats.HitCount > 0 {
		fmt.Printf("Cache:    %d entries, %.0f%% hit rate\n", metrics.CacheStats.Size, metrics.CacheHitRate*100)
	}

	return probeErr
}

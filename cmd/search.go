package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ghkit/ghkit/pkg/ghapi"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search GitHub",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Search endpoint (repositories, code, commits, issues, users, labels, topics)",
				Value: "repositories",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort field (endpoint-specific, e.g. stars)",
			},
			&cli.StringFlag{
				Name:  "order",
				Usage: "Sort order (asc or desc)",
			},
			&cli.IntFlag{
				Name:  "per-page",
				Usage: "Results per page (max 100)",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Page number to fetch",
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Fetch up to this many pages, starting at --page",
				Value: 1,
			},
			&cli.Int64Flag{
				Name:  "repository-id",
				Usage: "Repository ID (required for the labels endpoint)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON instead of formatted text",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.Args().First()
			if query == "" {
				return fmt.Errorf("usage: ghkit search [flags] <query>")
			}

			endpoint, err := ghapi.ParseEndpoint(c.String("endpoint"))
			if err != nil {
				return err
			}

			return runSearch(ctx, c.String("config"), ghapi.Request{
				Endpoint:     endpoint,
				Query:        query,
				Sort:         c.String("sort"),
				Order:        c.String("order"),
				PerPage:      c.Int("per-page"),
				Page:         c.Int("page"),
				RepositoryID: c.Int64("repository-id"),
			}, c.Int("pages"), c.Bool("json"))
		},
	}
}

func runSearch(ctx context.Context, configPath string, req ghapi.Request, pages int, asJSON bool) error {
	client, err := buildClient(configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if pages <= 1 {
		result, err := client.Search(ctx, req)
		if err != nil {
			return fmt.Errorf("searching: %w", err)
		}
		return printResult(result, asJSON)
	}

	iterator := client.Pages(req)
	fetched := 0
	for iterator.HasNext() && fetched < pages {
		result, err := iterator.Next(ctx)
		if err != nil {
			return fmt.Errorf("fetching page %d: %w", fetched+1, err)
		}
		if result == nil {
			break
		}
		fetched++
		if !asJSON {
			fmt.Printf("--- page %d ---\n", fetched)
		}
		if err := printResult(result, asJSON); err != nil {
			return err
		}
	}
	return nil
}

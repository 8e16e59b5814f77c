package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v73/github"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/ghkit/ghkit/pkg/config"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/ratelimit"
)

// ActivityCommand creates the activity command
func ActivityCommand() *cli.Command {
	return &cli.Command{
		Name:      "activity",
		Usage:     "Show a user's recent public GitHub activity",
		ArgsUsage: "<username>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of events",
				Value: 30,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			username := c.Args().First()
			if username == "" {
				return fmt.Errorf("usage: ghkit activity <username>")
			}
			return showActivity(ctx, c.String("config"), username, c.Int("limit"))
		},
	}
}

// showActivity lists recent public events through the GitHub SDK. This
// is the one command that talks to a non-search endpoint; each page
// fetch runs under the rate limiter's core-resource gate so the event
// listing draws from the same token pool as everything else.
func showActivity(ctx context.Context, configPath, username string, limit int) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	base := ghapi.NewClient(ghapi.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout.Duration,
	})
	limiter := ratelimit.New(base, ratelimit.Options{
		Tokens:   cfg.Tokens,
		FailFast: cfg.RateLimit.FailFast,
		Adaptive: cfg.RateLimit.Adaptive,
	})

	opts := &github.ListOptions{PerPage: min(limit, 100)}
	var events []*github.Event
	for len(events) < limit {
		var page []*github.Event
		var next int
		err := limiter.DoCore(ctx, func(ctx context.Context, token string) (http.Header, error) {
			sdk, err := sdkClient(ctx, token, cfg.BaseURL)
			if err != nil {
				return nil, err
			}
			batch, resp, err := sdk.Activity.ListEventsPerformedByUser(ctx, username, true, opts)
			if err != nil {
				if resp != nil {
					return resp.Header, err
				}
				return nil, err
			}
			page = batch
			next = resp.NextPage
			return resp.Header, nil
		})
		if err != nil {
			return fmt.Errorf("listing events for %s: %w", username, err)
		}
		events = append(events, page...)
		if next == 0 {
			break
		}
		opts.Page = next
	}
	if len(events) > limit {
		events = events[:limit]
	}

	if len(events) == 0 {
		fmt.Printf("No recent public activity for %s\n", username)
		return nil
	}

	for _, event := range events {
		repoName := ""
		if event.Repo != nil {
			repoName = event.Repo.GetName()
		}
		fmt.Printf("%-20s %-30s %s\n", event.GetType(), repoName, formatTime(event.GetCreatedAt().Time))
	}
	return nil
}

// sdkClient builds a go-github client authenticated with the token the
// pool selected for this call.
func sdkClient(ctx context.Context, token, baseURL string) (*github.Client, error) {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		client = github.NewClient(nil)
	}
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise URL: %w", err)
		}
	}
	return client, nil
}

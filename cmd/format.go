package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ghkit/ghkit/pkg/ghapi"
)

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		hours := int(diff.Hours())
		return fmt.Sprintf("%d hours ago", hours)
	}

	if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d days ago", days)
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// item is the subset of search item fields shared enough across
// endpoints to drive the text renderer. Unknown fields are ignored.
type item struct {
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	Login      string `json:"login"`
	Title      string `json:"title"`
	Path       string `json:"path"`
	HTMLURL    string `json:"html_url"`
	Stars      int    `json:"stargazers_count"`
	Language   string `json:"language"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Commit *struct {
		Message string `json:"message"`
	} `json:"commit"`
}

// itemLine renders one search item as a single display line.
func itemLine(raw json.RawMessage) string {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return string(raw)
	}

	switch {
	case it.Commit != nil:
		line := firstLine(it.Commit.Message)
		if it.Repository != nil {
			return fmt.Sprintf("%s: %s", it.Repository.FullName, line)
		}
		return line
	case it.Path != "":
		if it.Repository != nil {
			return fmt.Sprintf("%s: %s", it.Repository.FullName, it.Path)
		}
		return it.Path
	case it.Title != "":
		return it.Title
	case it.FullName != "":
		line := it.FullName
		if it.Language != "" {
			line += " (" + it.Language + ")"
		}
		if it.Stars > 0 {
			line += " ★" + formatNumber(it.Stars)
		}
		return line
	case it.Login != "":
		return it.Login
	case it.Name != "":
		return it.Name
	default:
		return string(raw)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// printResult renders a search result as text or JSON.
func printResult(result *ghapi.Result, asJSON bool) error {
	if asJSON {
		return printJSON(result)
	}

	marker := ""
	if result.Degraded {
		marker = " (degraded)"
	}
	fmt.Printf("Found %s results%s:\n", formatNumber(result.TotalCount), marker)
	if result.IncompleteResults {
		fmt.Println("(search timed out server-side; results are incomplete)")
	}
	for i, raw := range result.Items {
		fmt.Printf("%d. %s\n", i+1, itemLine(raw))
	}
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

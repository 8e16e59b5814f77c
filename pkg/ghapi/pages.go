package ghapi

import (
	"context"
	"strings"
)

// PageIterator walks the pages of a search lazily: each Next call
// fetches one page through the wrapped Searcher, so higher layers
// (rate limiting, caching) apply to every page fetch. The iterator is
// finite, not restartable once consumed, and not safe for concurrent
// use. Each call to Pages creates a fresh, independent iterator.
type PageIterator struct {
	searcher Searcher
	request  Request
	done     bool
}

// Pages creates an iterator over the result pages of req. The
// request's Page field selects the starting page (default 1).
func Pages(searcher Searcher, req Request) *PageIterator {
	if req.Page <= 0 {
		req.Page = 1
	}
	return &PageIterator{searcher: searcher, request: req}
}

// HasNext reports whether more pages may remain. It is only a hint:
// Next can still return nil, nil when the next page turns out empty.
func (it *PageIterator) HasNext() bool { return !it.done }

// Next fetches the next page. Returns nil, nil when all pages have
// been consumed.
func (it *PageIterator) Next(ctx context.Context) (*Result, error) {
	if it.done {
		return nil, nil
	}

	result, err := it.searcher.Search(ctx, it.request)
	if err != nil {
		it.done = true
		return nil, err
	}

	if len(result.Items) == 0 {
		it.done = true
		return nil, nil
	}

	// The Link header is authoritative when present; an absent
	// rel="next" means this was the last page. Cached results carry
	// no header, so fall back to stopping on a short page.
	if result.Header != nil {
		if parseLinkNext(result.Header.Get("Link")) == "" {
			it.done = true
		}
	} else if it.request.PerPage > 0 && len(result.Items) < it.request.PerPage {
		it.done = true
	}

	it.request.Page++
	return result, nil
}

// Collect fetches all remaining pages and concatenates their items
// into a single result.
func (it *PageIterator) Collect(ctx context.Context) (*Result, error) {
	var all *Result
	for {
		page, err := it.Next(ctx)
		if err != nil {
			return all, err
		}
		if page == nil {
			if all == nil {
				all = &Result{}
			}
			return all, nil
		}
		if all == nil {
			combined := *page
			all = &combined
			continue
		}
		all.Items = append(all.Items, page.Items...)
		all.IncompleteResults = all.IncompleteResults || page.IncompleteResults
	}
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link
// header. Returns empty string when no next page exists.
//
// Format: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)

		segments := strings.SplitN(part, ";", 2)
		if len(segments) != 2 {
			continue
		}
		if !strings.Contains(segments[1], `rel="next"`) {
			continue
		}
		urlPart := strings.TrimSpace(segments[0])
		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}
	return ""
}

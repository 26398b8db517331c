// Package news fetches headlines from RSS and Atom feeds.
package news

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/mmcdole/gofeed"
)

const maxSummaryRunes = 500

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Fetcher reads headlines from a list of feeds in order, skipping feeds that fail.
type Fetcher struct {
	feeds  []string
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewFetcher creates a fetcher for feeds. A nil client uses a client with a 30s timeout.
func NewFetcher(feeds []string, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "dailyreel/1.0"

	return &Fetcher{
		feeds:  feeds,
		parser: parser,
		logger: logger.With("module", "news"),
	}
}

// FetchNews returns up to maxArticles unique headlines.
func (f *Fetcher) FetchNews(ctx context.Context, maxArticles int) ([]models.Headline, error) {
	headlines := make([]models.Headline, 0, maxArticles)
	seen := make(map[string]struct{})

	var lastErr error

	for _, feedURL := range f.feeds {
		if len(headlines) >= maxArticles {
			break
		}

		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			f.logger.WarnContext(ctx, "Failed to fetch feed", "feed", feedURL, "error", err)
			lastErr = err

			continue
		}

		for _, item := range feed.Items {
			if len(headlines) >= maxArticles {
				break
			}

			headline, ok := toHeadline(item)
			if !ok {
				continue
			}

			key := strings.ToLower(headline.Title)
			if _, dup := seen[key]; dup {
				continue
			}

			seen[key] = struct{}{}
			headlines = append(headlines, headline)
		}
	}

	if len(headlines) == 0 {
		if lastErr == nil {
			lastErr = errors.New("feeds returned no items")
		}

		return nil, classify(lastErr)
	}

	f.logger.InfoContext(ctx, "Fetched headlines", "count", len(headlines))

	return headlines, nil
}

func toHeadline(item *gofeed.Item) (models.Headline, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return models.Headline{}, false
	}

	var source string

	// Google News titles look like "Title - Source".
	if i := strings.LastIndex(title, " - "); i > 0 {
		source = strings.TrimSpace(title[i+3:])
		title = strings.TrimSpace(title[:i])
	}

	if source == "" && item.Author != nil {
		source = item.Author.Name
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return models.Headline{
		Title:       title,
		Link:        item.Link,
		Source:      source,
		Summary:     cleanSummary(summary),
		PublishedAt: item.PublishedParsed,
	}, true
}

func cleanSummary(s string) string {
	s = strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxSummaryRunes {
		return string(runes[:maxSummaryRunes])
	}

	return s
}

func classify(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
		return adapters.Permanent(adapters.CodeSourceUnavailable, "no feed could be read", err)
	}

	return adapters.Transient(adapters.CodeSourceUnavailable, "no feed could be read", err)
}

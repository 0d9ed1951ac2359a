// Package rss pulls feed entries for vendor blogs and changelogs.
package rss

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

const defaultMaxItems = 10

type Feed struct {
	Name string
	URL  string
}

type Client struct {
	parser    *gofeed.Parser
	userAgent string
	maxItems  int
	log       logx.Logger
}

func New(userAgent string, timeout time.Duration, log logx.Logger) *Client {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{parser: p, userAgent: userAgent, maxItems: defaultMaxItems, log: log}
}

// Fetch returns up to maxItems entries from the feed, newest first as the
// feed orders them. A broken feed yields an error, never a partial panic.
func (c *Client) Fetch(ctx context.Context, feed Feed) ([]domain.Item, error) {
	parsed, err := c.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, err
	}

	var items []domain.Item
	for _, entry := range parsed.Items {
		if len(items) >= c.maxItems {
			break
		}
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = "(untitled)"
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		summary = clipRunes(stripHTML(summary), 400)

		items = append(items, domain.Item{
			Source:      feed.Name,
			Title:       title,
			URL:         link,
			Summary:     summary,
			PublishedAt: publishedAt(entry),
		})
	}

	c.log.Debug("feed fetched", logx.String("feed", feed.Name), logx.Int("items", len(items)))
	return items, nil
}

// publishedAt prefers the parsed published time, then updated, then the raw
// provider string.
func publishedAt(entry *gofeed.Item) string {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	if entry.Published != "" {
		return strings.TrimSpace(entry.Published)
	}
	return strings.TrimSpace(entry.Updated)
}

// clipRunes truncates on rune boundaries so multi-byte summaries stay valid
// UTF-8.
func clipRunes(s string, maxN int) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN])
}

// stripHTML flattens feed summaries that arrive as markup.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Package web detects updates on pages without feeds. Structured extraction
// via CSS selectors is tried first; when nothing structured is found, the
// page falls back to whole-page hash change detection.
package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

const defaultMaxItems = 10

// Page is one watched URL. Selector overrides the default article container.
type Page struct {
	Name     string
	URL      string
	Selector string
}

// Snapshots stores per-page content hashes between runs.
type Snapshots interface {
	SnapshotHash(ctx context.Context, source string) (string, error)
	UpsertSnapshot(ctx context.Context, source, hash string) error
}

type Client struct {
	http      *http.Client
	snaps     Snapshots
	userAgent string
	maxItems  int
	log       logx.Logger
}

func New(snaps Snapshots, userAgent string, timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		snaps:     snaps,
		userAgent: userAgent,
		maxItems:  defaultMaxItems,
		log:       log,
	}
}

// Fetch extracts items from the page. With structured hits, the item set's
// hash is snapshotted; without, the whole page hash is compared against the
// previous snapshot and a change notice item is emitted on mismatch.
func (c *Client) Fetch(ctx context.Context, page Page) ([]domain.Item, error) {
	html, err := c.fetchHTML(ctx, page.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.URL, err)
	}

	items := c.parseStructured(doc, page)
	if len(items) > 0 {
		var parts []string
		for _, it := range items {
			parts = append(parts, it.Title+"|"+it.URL)
		}
		c.saveHash(ctx, page.Name, hashString(strings.Join(parts, "||")))
		return items, nil
	}

	currentHash := hashString(html)
	oldHash, err := c.snaps.SnapshotHash(ctx, page.Name)
	if err != nil {
		c.log.Warn("snapshot lookup failed", logx.String("page", page.Name), logx.Err(err))
	}
	c.saveHash(ctx, page.Name, currentHash)

	if oldHash != "" && oldHash != currentHash {
		return []domain.Item{{
			Source:      page.Name,
			Title:       "Page update detected",
			URL:         page.URL,
			Summary:     "No structured articles were parsed, but the page content changed.",
			PublishedAt: time.Now().UTC().Format(time.RFC3339),
		}}, nil
	}
	return nil, nil
}

func (c *Client) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) parseStructured(doc *goquery.Document, page Page) []domain.Item {
	selector := page.Selector
	if selector == "" {
		selector = "article"
	}

	containers := doc.Find(selector)
	if containers.Length() == 0 {
		return c.parseHeuristicLinks(doc, page)
	}

	var items []domain.Item
	seen := make(map[string]struct{})
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		titleEl := s.Find("h1, h2, h3, a").First()
		title := clipRunes(squash(titleEl.Text()), 160)
		if title == "" {
			return true
		}

		href, _ := s.Find("a[href]").First().Attr("href")
		if href == "" {
			href, _ = titleEl.Attr("href")
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}

		full := resolveURL(page.URL, href)
		if _, dup := seen[full]; dup {
			return true
		}
		seen[full] = struct{}{}

		summary := clipRunes(squash(s.Find("p").First().Text()), 400)

		items = append(items, domain.Item{
			Source:      page.Name,
			Title:       title,
			URL:         full,
			Summary:     summary,
			PublishedAt: squash(s.Find("time").First().Text()),
		})
		return len(items) < c.maxItems
	})
	return items
}

// parseHeuristicLinks scans all links for blog/news-looking paths when no
// article container matched.
func (c *Client) parseHeuristicLinks(doc *goquery.Document, page Page) []domain.Item {
	var items []domain.Item
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		text := squash(a.Text())
		if href == "" || len(text) < 4 {
			return true
		}
		full := resolveURL(page.URL, href)
		key := strings.ToLower(full)
		if _, dup := seen[key]; dup {
			return true
		}
		for _, marker := range []string{"/blog", "/news", "/post", "/article"} {
			if strings.Contains(key, marker) {
				seen[key] = struct{}{}
				text = clipRunes(text, 160)
				items = append(items, domain.Item{
					Source: page.Name,
					Title:  text,
					URL:    full,
				})
				break
			}
		}
		return len(items) < c.maxItems
	})
	return items
}

func (c *Client) saveHash(ctx context.Context, name, hash string) {
	if err := c.snaps.UpsertSnapshot(ctx, name, hash); err != nil {
		c.log.Warn("snapshot save failed", logx.String("page", name), logx.Err(err))
	}
}

func resolveURL(base, href string) string {
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	hu, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(hu).String()
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clipRunes truncates on rune boundaries so multi-byte titles stay valid
// UTF-8.
func clipRunes(s string, maxN int) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN])
}

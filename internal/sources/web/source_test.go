package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

type memSnapshots struct {
	hashes map[string]string
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{hashes: map[string]string{}}
}

func (m *memSnapshots) SnapshotHash(_ context.Context, source string) (string, error) {
	return m.hashes[source], nil
}

func (m *memSnapshots) UpsertSnapshot(_ context.Context, source, hash string) error {
	m.hashes[source] = hash
	return nil
}

func serveHTML(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
}

const structuredHTML = `<html><body>
<article>
  <h2>First post title</h2>
  <a href="/blog/first">read</a>
  <p>First summary paragraph.</p>
  <time>2026-03-10</time>
</article>
<article>
  <h2>Second post title</h2>
  <a href="https://other.example.com/blog/second">read</a>
  <p>Second summary.</p>
</article>
</body></html>`

func TestFetchStructuredArticles(t *testing.T) {
	srv := serveHTML(structuredHTML)
	defer srv.Close()

	snaps := newMemSnapshots()
	c := New(snaps, "ua", time.Second, logx.Nop())

	items, err := c.Fetch(context.Background(), Page{Name: "site", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].Title != "First post title" {
		t.Fatalf("title = %q", items[0].Title)
	}
	if !strings.HasPrefix(items[0].URL, srv.URL) || !strings.HasSuffix(items[0].URL, "/blog/first") {
		t.Fatalf("relative link not resolved: %q", items[0].URL)
	}
	if items[0].Summary != "First summary paragraph." {
		t.Fatalf("summary = %q", items[0].Summary)
	}
	if items[0].PublishedAt != "2026-03-10" {
		t.Fatalf("published = %q", items[0].PublishedAt)
	}
	if snaps.hashes["site"] == "" {
		t.Fatalf("structured parse did not snapshot the item set")
	}
}

const linkSoupHTML = `<html><body>
<a href="/blog/alpha-release">Alpha release notes</a>
<a href="/blog/alpha-release">Alpha release notes again</a>
<a href="/pricing">Pricing</a>
<a href="/news/beta">Beta news item</a>
<a href="/about">x</a>
</body></html>`

func TestFetchHeuristicLinks(t *testing.T) {
	srv := serveHTML(linkSoupHTML)
	defer srv.Close()

	c := New(newMemSnapshots(), "ua", time.Second, logx.Nop())
	items, err := c.Fetch(context.Background(), Page{Name: "site", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d: %+v", len(items), items)
	}
	if items[0].Title != "Alpha release notes" || items[1].Title != "Beta news item" {
		t.Fatalf("wrong links kept: %+v", items)
	}
}

func TestClipRunesBoundary(t *testing.T) {
	long := strings.Repeat("报", 200)
	got := clipRunes(long, 160)
	if !utf8.ValidString(got) {
		t.Fatalf("clipped title is invalid UTF-8")
	}
	if n := len([]rune(got)); n != 160 {
		t.Fatalf("clipped to %d runes", n)
	}
	if got := clipRunes("short", 160); got != "short" {
		t.Fatalf("short string altered: %q", got)
	}
}

func TestFetchChangeDetectionFallback(t *testing.T) {
	body := `<html><body><p>nothing structured here</p></body></html>`
	srv := serveHTML(body)

	snaps := newMemSnapshots()
	c := New(snaps, "ua", time.Second, logx.Nop())
	page := Page{Name: "plain", URL: srv.URL}

	// First visit: no previous hash, no change notice.
	items, err := c.Fetch(context.Background(), page)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("first visit produced items: %+v", items)
	}
	firstHash := snaps.hashes["plain"]
	if firstHash == "" {
		t.Fatalf("page hash not stored")
	}
	srv.Close()

	// Same content again: still quiet.
	srv2 := serveHTML(body)
	page.URL = srv2.URL
	if items, _ := c.Fetch(context.Background(), page); len(items) != 0 {
		t.Fatalf("unchanged page produced items")
	}
	srv2.Close()

	// Changed content: one change notice.
	srv3 := serveHTML(`<html><body><p>now with different content</p></body></html>`)
	defer srv3.Close()
	page.URL = srv3.URL
	items, err = c.Fetch(context.Background(), page)
	if err != nil {
		t.Fatalf("changed fetch: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Page update detected" {
		t.Fatalf("change notice wrong: %+v", items)
	}
	if snaps.hashes["plain"] == firstHash {
		t.Fatalf("hash not updated after change")
	}
}

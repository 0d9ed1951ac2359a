package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

// chunkLimit keeps batch messages under Telegram's 4096-char cap with room
// for the continuation header.
const chunkLimit = 3600

// Summarizer produces a short human summary for an item. *llm.Client
// satisfies it; a nil Summarizer falls back to the rule engine.
type Summarizer interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var knownVendors = []string{
	"OpenAI", "Anthropic", "Google", "DeepSeek", "MiniMax", "xAI", "Meta",
	"Perplexity", "Mistral", "Claude", "Gemini", "Llama", "Grok", "Kimi", "Qwen",
}

// vendorOf prefers the item's own vendor tag, then a vendor named in the
// title prefix, then anywhere in the text, then the source label.
func vendorOf(item domain.Item) string {
	if item.Vendor != "" {
		return item.Vendor
	}
	title := strings.TrimSpace(item.Title)
	if idx := strings.Index(title, ":"); idx > 0 {
		prefix := strings.ToLower(title[:idx])
		for _, v := range knownVendors {
			if strings.Contains(prefix, strings.ToLower(v)) {
				return v
			}
		}
	}
	text := strings.ToLower(title + " " + item.Summary)
	for _, v := range knownVendors {
		if strings.Contains(text, strings.ToLower(v)) {
			return v
		}
	}
	return item.Source
}

var versionRe = regexp.MustCompile(`(?i)(v\d+(?:\.\d+)*|\d+\.\d+)`)

// ruleSummarize is the fallback when no LLM is configured or the call fails.
func ruleSummarize(item domain.Item) string {
	if item.Importance != domain.ImportanceMajor {
		return "Routine update."
	}

	versionInfo := ""
	if m := versionRe.FindString(item.Title); m != "" {
		versionInfo = " " + m
	}

	lower := strings.ToLower(item.Title)
	var products []string
	for _, p := range []string{"GPT", "Claude", "Gemini", "Llama", "DeepSeek"} {
		if strings.Contains(lower, strings.ToLower(p)) {
			products = append(products, p)
		}
	}
	if len(products) > 0 {
		return strings.Join(products, ", ") + versionInfo + " shipped an update."
	}
	return "Product update" + versionInfo + "."
}

const (
	majorSummaryPrompt = "You are an AI product analyst. Given one AI product update, " +
		"summarize the core change in two or three sentences and list 2-3 practical use cases. " +
		"Output only the summary, no headings."
	minorSummaryPrompt = "You are a terse AI product announcer. For routine updates and " +
		"acquisition news, one or two sentences suffice. Output only the summary, no headings."
)

func summarize(ctx context.Context, s Summarizer, item domain.Item) string {
	if s == nil {
		return ruleSummarize(item)
	}
	system := minorSummaryPrompt
	if item.Importance == domain.ImportanceMajor {
		system = majorSummaryPrompt
	}
	user := fmt.Sprintf("Title: %s\nSummary: %s\nSource: %s\nLink: %s",
		item.Title, item.Summary, item.Source, item.URL)

	out, err := s.Chat(ctx, system, user)
	if err != nil || strings.TrimSpace(out) == "" {
		return ruleSummarize(item)
	}
	return strings.TrimSpace(out)
}

func localTime(publishedAt string, loc *time.Location) string {
	if publishedAt != "" {
		if t, err := time.Parse(time.RFC3339, publishedAt); err == nil {
			return t.In(loc).Format("2006-01-02 15:04")
		}
	}
	return time.Now().In(loc).Format("2006-01-02 15:04")
}

// formatItem renders one immediate notification.
func formatItem(ctx context.Context, s Summarizer, item domain.Item, loc *time.Location) string {
	prefix := ""
	if item.Importance == domain.ImportanceMajor {
		prefix = "\U0001F6A8 "
	}
	return fmt.Sprintf("%s%s: %s\nTime: %s\n%s\nLink: %s",
		prefix, vendorOf(item), item.Title,
		localTime(item.PublishedAt, loc),
		summarize(ctx, s, item),
		item.URL,
	)
}

// formatBatch renders a daytime digest, major items first, split into chunks
// that each fit one Telegram message.
func formatBatch(items []domain.Item, loc *time.Location) []string {
	if len(items) == 0 {
		return nil
	}

	ordered := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.Importance == domain.ImportanceMajor {
			ordered = append(ordered, it)
		}
	}
	for _, it := range items {
		if it.Importance != domain.ImportanceMajor {
			ordered = append(ordered, it)
		}
	}

	header := fmt.Sprintf("\U0001F9FE Daytime batch (%d items)\nTime: %s\n",
		len(ordered), time.Now().In(loc).Format("2006-01-02 15:04"))

	var chunks []string
	current := header
	for i, item := range ordered {
		bullet := "•"
		if item.Importance == domain.ImportanceMajor {
			bullet = "\U0001F6A8"
		}
		title := clipRunes(strings.Join(strings.Fields(item.Title), " "), 90, true)
		block := fmt.Sprintf("%d. %s %s: %s\n%s\n\n", i+1, bullet, vendorOf(item), title, item.URL)

		if len(current)+len(block) > chunkLimit {
			chunks = append(chunks, strings.TrimRight(current, "\n"))
			current = "\U0001F9FE Batch continued\n" + block
		} else {
			current += block
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimRight(current, "\n"))
	}
	return chunks
}

// clipRunes truncates on rune boundaries; byte slicing would split multi-byte
// characters and Telegram rejects invalid UTF-8.
func clipRunes(s string, maxN int, ellipsis bool) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	if ellipsis {
		return string(r[:maxN]) + "..."
	}
	return string(r[:maxN])
}

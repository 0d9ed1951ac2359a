package monitor

import (
	"strings"
	"sync"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

// Label is the importance stage outcome. Only LabelMajor and LabelMinor pass
// the stage; LabelNormal and LabelFiltered drop (with distinct reason codes).
type Label string

const (
	LabelMajor    Label = "major"
	LabelMinor    Label = "minor"
	LabelNormal   Label = "normal"
	LabelFiltered Label = "filtered"
)

// Verdict is an importance label plus the keyword that produced it.
type Verdict struct {
	Label Label
	Rule  string
}

// AttentionMissRule marks an attention-only entity whose item mentioned none
// of the allow-list organizations.
const AttentionMissRule = "attention_allowlist_miss"

// Keywords configures the ordered classification rules. All matching is
// case-insensitive substring containment against the lower-cased text.
type Keywords struct {
	// Acquisition terms label minor: deal news is worth a line, not a siren.
	Acquisition []string
	// Launch terms label major.
	Launch []string
	// Update terms classify the item but leave it at normal (dropped).
	Update []string

	// Noise is the off-topic denylist applied after importance.
	Noise []string

	// AttentionAllow/AttentionDeny gate attention-only entities: a deny hit or
	// an allow miss filters the item before any importance scan.
	AttentionAllow []string
	AttentionDeny  []string
}

// DefaultKeywords returns the stock rule sets. Config may override any list.
func DefaultKeywords() Keywords {
	return Keywords{
		Acquisition: []string{"acqui", "merger", "merge"},
		Launch: []string{
			"release", "launch", "new model", "new api", "new mode", "new feature",
			"announce", "introduce", "introducing", "debut",
			"gpt-", "claude-", "gemini", "codex", "operator",
			"version 2", "version 3", "version 4", "version 5",
			"veo", "sora",
		},
		Update: []string{
			"update", "fix", "bug", "optimize", "improve", "patch",
			"now support", "add ", "enhance",
			"demo", "showcase", "example", "walkthrough", "how to",
			"improvement", "available",
		},
		Noise: []string{"hiring", "job ", "event", "meetup", "podcast", "welcoming"},
		AttentionAllow: []string{
			"openai", "anthropic", "google", "meta", "microsoft", "apple", "amazon",
			"deepseek", "mistral", "llama", "claude", "gpt", "gemini",
			"chatgpt", "copilot", "cursor", "windsurf",
		},
		AttentionDeny: []string{
			"perplexity", "kane ai", "raycast", "alfred",
			"linear", "notion", "obsidian",
		},
	}
}

type importanceRule struct {
	label Label
	terms []string
}

// Classifier runs the staged keyword decision pipeline. Rule order is fixed:
// acquisition before launch before update, first matching keyword wins.
// Reload may be called concurrently with classification (config hot reload).
type Classifier struct {
	mu    sync.RWMutex
	rules []importanceRule
	noise []string
	allow []string
	deny  []string
}

func NewClassifier(kw Keywords) *Classifier {
	c := &Classifier{}
	c.Reload(kw)
	return c
}

// Reload swaps the keyword sets. Empty lists fall back to the defaults so a
// sparse config section cannot silently disable a stage.
func (c *Classifier) Reload(kw Keywords) {
	def := DefaultKeywords()
	if len(kw.Acquisition) == 0 {
		kw.Acquisition = def.Acquisition
	}
	if len(kw.Launch) == 0 {
		kw.Launch = def.Launch
	}
	if len(kw.Update) == 0 {
		kw.Update = def.Update
	}
	if len(kw.Noise) == 0 {
		kw.Noise = def.Noise
	}
	if len(kw.AttentionAllow) == 0 {
		kw.AttentionAllow = def.AttentionAllow
	}
	if len(kw.AttentionDeny) == 0 {
		kw.AttentionDeny = def.AttentionDeny
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = []importanceRule{
		{label: LabelMinor, terms: lowerAll(kw.Acquisition)},
		{label: LabelMajor, terms: lowerAll(kw.Launch)},
		{label: LabelNormal, terms: lowerAll(kw.Update)},
	}
	c.noise = lowerAll(kw.Noise)
	c.allow = lowerAll(kw.AttentionAllow)
	c.deny = lowerAll(kw.AttentionDeny)
}

// Importance labels an item's text for the given entity. Attention-only
// entities are gated first; then the ordered rule list is scanned and the
// first matching keyword decides. Text matching nothing is normal.
func (c *Classifier) Importance(e domain.Entity, text string) Verdict {
	lower := strings.ToLower(text)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if e.AttentionOnly {
		if term, hit := firstMatch(lower, c.deny); hit {
			return Verdict{Label: LabelFiltered, Rule: term}
		}
		if _, hit := firstMatch(lower, c.allow); !hit {
			return Verdict{Label: LabelFiltered, Rule: AttentionMissRule}
		}
	}

	for _, r := range c.rules {
		if term, hit := firstMatch(lower, r.terms); hit {
			return Verdict{Label: r.label, Rule: term}
		}
	}
	return Verdict{Label: LabelNormal}
}

// Noise scans for off-topic denylist terms, returning the first hit.
func (c *Classifier) Noise(text string) (string, bool) {
	lower := strings.ToLower(text)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return firstMatch(lower, c.noise)
}

func firstMatch(lower string, terms []string) (string, bool) {
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			return t, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

package monitor

import (
	"testing"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

func plainEntity() domain.Entity {
	return domain.NewEntity("acct", "A", "", false, false)
}

func attentionEntity() domain.Entity {
	return domain.NewEntity("watcher", "B", "", false, true)
}

func TestImportanceRuleOrder(t *testing.T) {
	c := NewClassifier(DefaultKeywords())

	cases := []struct {
		text string
		want Label
	}{
		{"We are announcing a merger with Acme", LabelMinor},
		{"Introducing our new model for coding", LabelMajor},
		{"Bug fix rollout for the API", LabelNormal},
		{"Nothing notable in this post", LabelNormal},
	}
	for _, tc := range cases {
		v := c.Importance(plainEntity(), tc.text)
		if v.Label != tc.want {
			t.Fatalf("%q: label = %s, want %s", tc.text, v.Label, tc.want)
		}
	}
}

func TestImportanceAcquisitionBeatsLaunch(t *testing.T) {
	c := NewClassifier(DefaultKeywords())

	// Matches both the acquisition and launch rule sets; the acquisition
	// rules scan first, so deal news can never escalate to major.
	v := c.Importance(plainEntity(), "Announcing the acquisition of Acme to launch a new model")
	if v.Label != LabelMinor {
		t.Fatalf("label = %s, want minor", v.Label)
	}
	if v.Rule == "" {
		t.Fatalf("winning keyword not reported")
	}
}

func TestImportanceFirstKeywordWins(t *testing.T) {
	c := NewClassifier(Keywords{Launch: []string{"alpha", "beta"}})
	v := c.Importance(plainEntity(), "beta and alpha both appear")
	if v.Rule != "alpha" {
		t.Fatalf("rule = %q, want first configured keyword", v.Rule)
	}
}

func TestAttentionOnlyGating(t *testing.T) {
	c := NewClassifier(DefaultKeywords())

	// Deny hit filters even when an allow org is present.
	v := c.Importance(attentionEntity(), "Perplexity launches a new model with OpenAI")
	if v.Label != LabelFiltered {
		t.Fatalf("deny hit: label = %s", v.Label)
	}

	// No allow org mentioned.
	v = c.Importance(attentionEntity(), "Launching my new side project today")
	if v.Label != LabelFiltered || v.Rule != AttentionMissRule {
		t.Fatalf("allow miss: label = %s rule = %q", v.Label, v.Rule)
	}

	// Allow org present: classified as usual.
	v = c.Importance(attentionEntity(), "OpenAI is introducing a new model")
	if v.Label != LabelMajor {
		t.Fatalf("allow hit: label = %s", v.Label)
	}

	// Non-attention entities skip the gate entirely.
	v = c.Importance(plainEntity(), "Launching my new side project today")
	if v.Label != LabelMajor {
		t.Fatalf("plain entity gated: label = %s", v.Label)
	}
}

func TestNoiseScan(t *testing.T) {
	c := NewClassifier(DefaultKeywords())

	if term, hit := c.Noise("We are hiring engineers"); !hit || term != "hiring" {
		t.Fatalf("noise scan: term = %q hit = %v", term, hit)
	}
	if _, hit := c.Noise("Shipping a new model today"); hit {
		t.Fatalf("clean text flagged as noise")
	}
}

func TestReloadEmptyListsFallBackToDefaults(t *testing.T) {
	c := NewClassifier(Keywords{})
	v := c.Importance(plainEntity(), "introducing something")
	if v.Label != LabelMajor {
		t.Fatalf("defaults not applied: label = %s", v.Label)
	}

	c.Reload(Keywords{Launch: []string{"zzz-custom"}})
	if v := c.Importance(plainEntity(), "introducing something"); v.Label == LabelMajor {
		t.Fatalf("custom launch list not applied")
	}
	if v := c.Importance(plainEntity(), "zzz-custom thing"); v.Label != LabelMajor {
		t.Fatalf("custom keyword ignored")
	}
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/audit"
	"github.com/itsgxxxxx/AI-Monitor/internal/config"
	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/internal/metrics"
	"github.com/itsgxxxxx/AI-Monitor/internal/monitor"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

func testApp(t *testing.T) (*App, string) {
	t.Helper()
	auditPath := filepath.Join(t.TempDir(), "decision.jsonl")
	sink, err := audit.NewFileSink(auditPath, logx.Nop())
	if err != nil {
		t.Fatalf("audit sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	return &App{
		log:        logx.Nop(),
		loc:        time.UTC,
		classifier: monitor.NewClassifier(monitor.DefaultKeywords()),
		metrics:    metrics.New(),
		sink:       sink,
	}, auditPath
}

func TestRateItemsDropsNoise(t *testing.T) {
	a, auditPath := testApp(t)
	poll := monitor.NewPoll(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	kept := a.rateItems(poll, []domain.Item{
		{Title: "Launching our new AI podcast", Source: "Vendor Blog", URL: "https://v.example.com/podcast"},
		{Title: "Introducing a new model", Source: "Vendor Blog", URL: "https://v.example.com/model"},
	})

	// The podcast post matches the launch rule but the noise denylist wins.
	if len(kept) != 1 {
		t.Fatalf("kept = %d items, want 1", len(kept))
	}
	if kept[0].Title != "Introducing a new model" {
		t.Fatalf("kept wrong item: %q", kept[0].Title)
	}
	if kept[0].Importance != domain.ImportanceMajor {
		t.Fatalf("importance = %q", kept[0].Importance)
	}
	if !strings.HasPrefix(kept[0].Reason, "importance:") {
		t.Fatalf("reason = %q", kept[0].Reason)
	}

	trail, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit trail: %v", err)
	}
	if !strings.Contains(string(trail), audit.ReasonNoiseKeyword) {
		t.Fatalf("noise drop not recorded:\n%s", trail)
	}
	if !strings.Contains(string(trail), `"matched_rule":"podcast"`) {
		t.Fatalf("matched noise term not recorded:\n%s", trail)
	}
}

func TestRateItemsDropsNormal(t *testing.T) {
	a, _ := testApp(t)
	poll := monitor.NewPoll(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	kept := a.rateItems(poll, []domain.Item{
		{Title: "Minor bug fix rollout", Source: "Vendor Blog"},
		{Title: "Quarterly office tour", Source: "Vendor Blog"},
	})
	if len(kept) != 0 {
		t.Fatalf("normal items kept: %+v", kept)
	}
}

func TestValidateReloadRejectsTimezoneChange(t *testing.T) {
	a, _ := testApp(t)

	same := &config.Config{}
	same.Poll.Timezone = "UTC"
	if err := a.validateReload(context.Background(), same); err != nil {
		t.Fatalf("unchanged timezone rejected: %v", err)
	}

	changed := &config.Config{}
	changed.Poll.Timezone = "America/New_York"
	if err := a.validateReload(context.Background(), changed); err == nil {
		t.Fatalf("timezone change accepted")
	}
}

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/audit"
	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/internal/monitor"
)

type fakeDeduper struct {
	dupes map[string]bool
	err   error
}

func (f *fakeDeduper) SaveIfNew(_ context.Context, item domain.Item) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.dupes[item.ItemID], nil
}

type fakeSender struct {
	sent     []string
	batches  [][]string
	sendErr  error
	batchErr error
}

func (f *fakeSender) Send(_ context.Context, item domain.Item) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, item.ItemID)
	return nil
}

func (f *fakeSender) SendBatch(_ context.Context, items []domain.Item) error {
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ItemID)
	}
	f.batches = append(f.batches, ids)
	return f.batchErr
}

type memSink struct {
	records []audit.Record
}

func (s *memSink) Log(rec audit.Record) { s.records = append(s.records, rec) }

func (s *memSink) reasons(stage string) []string {
	var out []string
	for _, r := range s.records {
		if r.Stage == stage {
			out = append(out, r.ReasonCode)
		}
	}
	return out
}

func testItems(ids ...string) []domain.Item {
	var out []domain.Item
	for _, id := range ids {
		out = append(out, domain.Item{
			ItemID: id,
			Entity: "acct",
			Tier:   domain.TierA,
			Title:  "item " + id,
			URL:    "https://x.com/acct/status/" + id,
		})
	}
	return out
}

func testPoll() monitor.Poll {
	return monitor.NewPoll(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
}

func TestDispatchNightSendsEach(t *testing.T) {
	sender := &fakeSender{}
	sink := &memSink{}
	d := NewDispatcher(&fakeDeduper{}, sender, sink, nil, testLogger())

	pushed := d.Dispatch(context.Background(), testPoll(), testItems("1", "2"), true)
	if pushed != 2 {
		t.Fatalf("pushed = %d", pushed)
	}
	if len(sender.sent) != 2 || len(sender.batches) != 0 {
		t.Fatalf("night dispatch used batching: sent=%v batches=%v", sender.sent, sender.batches)
	}
	for _, r := range sink.records {
		if r.Stage == audit.StagePush && r.MatchedRule != "night_single" {
			t.Fatalf("push rule = %q", r.MatchedRule)
		}
	}
}

func TestDispatchDayUsesBatch(t *testing.T) {
	sender := &fakeSender{}
	sink := &memSink{}
	d := NewDispatcher(&fakeDeduper{}, sender, sink, nil, testLogger())

	pushed := d.Dispatch(context.Background(), testPoll(), testItems("1", "2", "3"), false)
	if pushed != 3 {
		t.Fatalf("pushed = %d", pushed)
	}
	if len(sender.batches) != 1 || len(sender.sent) != 0 {
		t.Fatalf("day dispatch did not batch: sent=%v batches=%v", sender.sent, sender.batches)
	}
	if got := sink.reasons(audit.StagePush); len(got) != 3 {
		t.Fatalf("push records = %v", got)
	}
}

func TestDispatchBatchFailureFallsBackToSingles(t *testing.T) {
	sender := &fakeSender{batchErr: errors.New("telegram 429")}
	sink := &memSink{}
	d := NewDispatcher(&fakeDeduper{}, sender, sink, nil, testLogger())

	pushed := d.Dispatch(context.Background(), testPoll(), testItems("1", "2"), false)
	if pushed != 2 {
		t.Fatalf("pushed = %d after fallback", pushed)
	}
	if len(sender.batches) != 1 || len(sender.sent) != 2 {
		t.Fatalf("fallback not exercised: sent=%v batches=%v", sender.sent, sender.batches)
	}
	var sawFallbackRule bool
	for _, r := range sink.records {
		if r.Stage == audit.StagePush && r.MatchedRule == "day_batch_fallback_single" {
			sawFallbackRule = true
		}
	}
	if !sawFallbackRule {
		t.Fatalf("fallback pushes not attributed")
	}
}

func TestDispatchDropsDuplicates(t *testing.T) {
	sender := &fakeSender{}
	sink := &memSink{}
	d := NewDispatcher(&fakeDeduper{dupes: map[string]bool{"2": true}}, sender, sink, nil, testLogger())

	pushed := d.Dispatch(context.Background(), testPoll(), testItems("1", "2"), true)
	if pushed != 1 {
		t.Fatalf("pushed = %d", pushed)
	}
	got := sink.reasons(audit.StageDedupe)
	if len(got) != 2 || got[0] != audit.ReasonDedupeNew || got[1] != audit.ReasonDedupeHash {
		t.Fatalf("dedupe reasons = %v", got)
	}
}

func TestDispatchStoreErrorSkipsPush(t *testing.T) {
	sender := &fakeSender{}
	sink := &memSink{}
	d := NewDispatcher(&fakeDeduper{err: errors.New("db locked")}, sender, sink, nil, testLogger())

	pushed := d.Dispatch(context.Background(), testPoll(), testItems("1"), true)
	if pushed != 0 || len(sender.sent) != 0 {
		t.Fatalf("items pushed without a dedupe verdict")
	}
}

func TestDispatchSendFailureRecorded(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("network down")}
	sink := &memSink{}
	d := NewDispatcher(&fakeDeduper{}, sender, sink, nil, testLogger())

	pushed := d.Dispatch(context.Background(), testPoll(), testItems("1"), true)
	if pushed != 0 {
		t.Fatalf("pushed = %d", pushed)
	}
	got := sink.reasons(audit.StagePush)
	if len(got) != 1 || got[0] != audit.ReasonPushFail {
		t.Fatalf("push reasons = %v", got)
	}
}

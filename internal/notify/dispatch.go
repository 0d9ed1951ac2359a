package notify

import (
	"context"

	"github.com/itsgxxxxx/AI-Monitor/internal/audit"
	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/internal/monitor"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

// Sender is the delivery side of the dispatcher. *Telegram satisfies it.
type Sender interface {
	Send(ctx context.Context, item domain.Item) error
	SendBatch(ctx context.Context, items []domain.Item) error
}

// Deduper is the persistence side. *storage.Store satisfies it.
type Deduper interface {
	SaveIfNew(ctx context.Context, item domain.Item) (bool, error)
}

// PushCounter records push outcomes. *metrics.Metrics satisfies it.
type PushCounter interface {
	Push(ok bool)
}

// Dispatcher stages accepted items through dedupe and delivery. Night polls
// push each item immediately; day polls send one digest and fall back to
// per-item sends if the digest fails, so a flaky batch never loses messages.
type Dispatcher struct {
	store    Deduper
	sender   Sender
	sink     audit.Sink
	counters PushCounter
	log      logx.Logger
}

func NewDispatcher(store Deduper, sender Sender, sink audit.Sink, counters PushCounter, log logx.Logger) *Dispatcher {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{store: store, sender: sender, sink: sink, counters: counters, log: log}
}

// Dispatch dedupes and delivers the round's accepted items. It returns the
// number of items actually pushed.
func (d *Dispatcher) Dispatch(ctx context.Context, poll monitor.Poll, items []domain.Item, night bool) int {
	staged := d.dedupe(ctx, poll, items)
	if len(staged) == 0 {
		d.log.Info("round complete, nothing new to push", logx.String("poll_id", poll.ID))
		return 0
	}

	if night {
		return d.sendEach(ctx, poll, staged, "night_single")
	}
	return d.sendBatch(ctx, poll, staged)
}

func (d *Dispatcher) dedupe(ctx context.Context, poll monitor.Poll, items []domain.Item) []domain.Item {
	var staged []domain.Item
	for _, item := range items {
		saved, err := d.store.SaveIfNew(ctx, item)
		if err != nil {
			// Without a dedupe verdict the safe call is to not push: a
			// transient DB error must not spam the channel with repeats.
			d.log.Warn("dedupe store failed, item skipped",
				logx.String("poll_id", poll.ID),
				logx.String("item_id", item.ItemID),
				logx.Err(err),
			)
			continue
		}
		if saved {
			staged = append(staged, item)
			d.record(poll, item, audit.DecisionPass, audit.ReasonDedupeNew, item.Reason, audit.StageDedupe)
		} else {
			d.record(poll, item, audit.DecisionDrop, audit.ReasonDedupeHash, "content_hash_exists", audit.StageDedupe)
			d.log.Debug("duplicate item dropped",
				logx.String("poll_id", poll.ID),
				logx.String("item_id", item.ItemID),
			)
		}
	}
	return staged
}

func (d *Dispatcher) sendEach(ctx context.Context, poll monitor.Poll, items []domain.Item, rule string) int {
	pushed := 0
	for _, item := range items {
		err := d.sender.Send(ctx, item)
		ok := err == nil
		if ok {
			pushed++
		} else {
			d.log.Warn("push failed",
				logx.String("poll_id", poll.ID),
				logx.String("item_id", item.ItemID),
				logx.Err(err),
			)
		}
		d.recordPush(poll, item, ok, rule)
	}
	return pushed
}

func (d *Dispatcher) sendBatch(ctx context.Context, poll monitor.Poll, items []domain.Item) int {
	err := d.sender.SendBatch(ctx, items)
	if err == nil {
		for _, item := range items {
			d.recordPush(poll, item, true, "day_batch")
		}
		d.log.Info("daytime batch pushed",
			logx.String("poll_id", poll.ID),
			logx.Int("items", len(items)),
		)
		return len(items)
	}

	d.log.Warn("batch push failed, falling back to single sends",
		logx.String("poll_id", poll.ID),
		logx.Err(err),
	)
	return d.sendEach(ctx, poll, items, "day_batch_fallback_single")
}

func (d *Dispatcher) recordPush(poll monitor.Poll, item domain.Item, ok bool, rule string) {
	if d.counters != nil {
		d.counters.Push(ok)
	}
	decision, reason := audit.DecisionPass, audit.ReasonPushOK
	if !ok {
		decision, reason = audit.DecisionDrop, audit.ReasonPushFail
	}
	d.record(poll, item, decision, reason, rule, audit.StagePush)
}

func (d *Dispatcher) record(poll monitor.Poll, item domain.Item, decision, reason, rule, stage string) {
	entity := item.Entity
	if entity == "" {
		entity = item.Source
	}
	d.sink.Log(audit.Record{
		PollID:      poll.ID,
		RunID:       poll.RunID,
		Entity:      entity,
		ItemID:      item.ItemID,
		Tier:        string(item.Tier),
		Stage:       stage,
		Decision:    decision,
		ReasonCode:  reason,
		MatchedRule: rule,
	})
}

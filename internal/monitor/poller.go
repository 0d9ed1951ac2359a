package monitor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/audit"
	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

// Poll identifies one scheduling round. Start is the poll's logical time: the
// window upper bound, the advancer input, and the due check all use it so a
// slow fetch cannot skew scheduling state.
type Poll struct {
	ID    string
	RunID string
	Start time.Time
}

// NewPoll mints a poll id from the UTC wall clock plus a short random suffix.
func NewPoll(now time.Time) Poll {
	var b [3]byte
	_, _ = rand.Read(b[:])
	id := now.UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(b[:])
	return Poll{ID: id, RunID: id, Start: now}
}

// Fetcher pulls raw candidates for one entity. Implementations must fail soft
// where they can; a returned error is treated as zero candidates for this
// poll and never aborts the round for other entities.
type Fetcher interface {
	Fetch(ctx context.Context, e domain.Entity) ([]domain.Candidate, error)
}

// Counters receives pipeline metrics. All methods must be cheap and safe from
// the scheduling goroutine.
type Counters interface {
	EntityPolled(tier domain.Tier)
	Decision(stage, decision string)
	FetchError(source string)
}

// PollerDeps wires the poller's collaborators.
type PollerDeps struct {
	Registry   *Registry
	Policy     *Policy
	Classifier *Classifier
	Fetcher    Fetcher
	Sink       audit.Sink
	Counters   Counters
	Log        logx.Logger
}

// Poller runs one scheduling round: due-set selection, per-entity fetch,
// window extraction, staged classification, and schedule advancement. It is
// single-threaded by design; the registry is only ever touched from Run.
type Poller struct {
	reg      *Registry
	policy   *Policy
	class    *Classifier
	fetcher  Fetcher
	sink     audit.Sink
	counters Counters
	log      logx.Logger
}

func NewPoller(deps PollerDeps) *Poller {
	sink := deps.Sink
	if sink == nil {
		sink = audit.NopSink{}
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		reg:      deps.Registry,
		policy:   deps.Policy,
		class:    deps.Classifier,
		fetcher:  deps.Fetcher,
		sink:     sink,
		counters: deps.Counters,
		log:      log,
	}
}

// Run evaluates the due set once and processes due entities sequentially.
// Entities that are not due are skipped with no state mutation and no audit
// record (skipping is a scheduling outcome, not a classification decision).
func (p *Poller) Run(ctx context.Context, poll Poll, entities []domain.Entity) []domain.Item {
	var accepted []domain.Item
	for _, e := range entities {
		if ctx.Err() != nil {
			break
		}
		clock := p.reg.Ensure(e)
		if !p.policy.ShouldPoll(clock, poll.Start) {
			p.log.Debug("entity not due, skipping",
				logx.String("poll_id", poll.ID),
				logx.String("entity", e.Key),
				logx.String("tier", string(e.Tier)),
			)
			continue
		}
		accepted = append(accepted, p.pollEntity(ctx, poll, e, clock)...)
	}
	return accepted
}

type stageStats struct {
	raw, window, importance, noise, final int
}

func (p *Poller) pollEntity(ctx context.Context, poll Poll, e domain.Entity, clock *Clock) []domain.Item {
	now := poll.Start
	if p.counters != nil {
		p.counters.EntityPolled(e.Tier)
	}

	candidates, err := p.fetcher.Fetch(ctx, e)
	if err != nil {
		// Failure isolation: this entity's poll degrades to zero candidates,
		// the rest of the round is unaffected. The clock still advances below.
		p.log.Warn("fetch failed, treating as empty poll",
			logx.String("poll_id", poll.ID),
			logx.String("entity", e.Key),
			logx.Err(err),
		)
		if p.counters != nil {
			p.counters.FetchError(e.Key)
		}
		candidates = nil
	}

	var stats stageStats
	stats.raw = len(candidates)

	inWindow := p.applyWindow(poll, e, clock, candidates)
	stats.window = len(inWindow)

	var items []domain.Item
	for _, cand := range inWindow {
		verdict := p.class.Importance(e, cand.Text)
		switch verdict.Label {
		case LabelFiltered:
			p.record(poll, e, cand.ID, audit.StageImportance, audit.DecisionDrop, audit.ReasonImportanceFilter, verdict.Rule)
			continue
		case LabelNormal:
			p.record(poll, e, cand.ID, audit.StageImportance, audit.DecisionDrop, audit.ReasonImportanceNormal, verdict.Rule)
			continue
		}
		stats.importance++
		p.record(poll, e, cand.ID, audit.StageImportance, audit.DecisionPass, audit.ReasonImportancePass, verdict.Rule)

		if term, hit := p.class.Noise(cand.Text); hit {
			stats.noise++
			p.record(poll, e, cand.ID, audit.StageNoise, audit.DecisionDrop, audit.ReasonNoiseKeyword, term)
			continue
		}
		p.record(poll, e, cand.ID, audit.StageNoise, audit.DecisionPass, audit.ReasonNoisePass, "")

		item := materialize(e, cand, verdict)
		p.record(poll, e, cand.ID, audit.StageAccept, audit.DecisionPass, audit.ReasonAcceptStaged, item.Reason)
		items = append(items, item)
		stats.final++
	}

	interval := clock.Advance(len(items) > 0, now, p.policy)

	p.log.Info("entity poll complete",
		logx.String("poll_id", poll.ID),
		logx.String("entity", e.Key),
		logx.String("tier", string(e.Tier)),
		logx.Int("raw", stats.raw),
		logx.Int("in_window", stats.window),
		logx.Int("important", stats.importance),
		logx.Int("noise_dropped", stats.noise),
		logx.Int("accepted", stats.final),
		logx.Int("streak", clock.EmptyStreak),
		logx.Duration("next_in", interval),
	)
	return items
}

// applyWindow keeps candidates inside (LastFresh, poll.Start] and emits one
// raw record plus one window record per candidate, in-window or not. Window
// drops carry the raw provider timestamp string so malformed dates stay
// attributable offline.
func (p *Poller) applyWindow(poll Poll, e domain.Entity, clock *Clock, candidates []domain.Candidate) []domain.Candidate {
	kept := make([]domain.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		p.record(poll, e, cand.ID, audit.StageRaw, audit.DecisionPass, audit.ReasonRawFetched, "")
		if InWindow(cand.CreatedAt, clock.LastFresh, poll.Start) {
			kept = append(kept, cand)
			p.record(poll, e, cand.ID, audit.StageWindow, audit.DecisionPass, audit.ReasonWindowInRange, "")
		} else {
			p.record(poll, e, cand.ID, audit.StageWindow, audit.DecisionDrop, audit.ReasonWindowOld, cand.CreatedRaw)
		}
	}
	return kept
}

func (p *Poller) record(poll Poll, e domain.Entity, itemID, stage, decision, reason, rule string) {
	if p.counters != nil {
		p.counters.Decision(stage, decision)
	}
	p.sink.Log(audit.Record{
		PollID:      poll.ID,
		RunID:       poll.RunID,
		Entity:      e.Key,
		ItemID:      itemID,
		Tier:        string(e.Tier),
		Stage:       stage,
		Decision:    decision,
		ReasonCode:  reason,
		MatchedRule: rule,
	})
}

// materialize turns a surviving candidate into an output item. Only two
// importance levels are visible downstream: anything that is not major is
// emitted as minor. The provenance tag keeps the winning rule attributable.
func materialize(e domain.Entity, cand domain.Candidate, verdict Verdict) domain.Item {
	importance := domain.ImportanceMinor
	if verdict.Label == LabelMajor {
		importance = domain.ImportanceMajor
	}

	rule := verdict.Rule
	if rule == "" {
		rule = "n/a"
	}

	published := ""
	if !cand.CreatedAt.IsZero() {
		published = cand.CreatedAt.Format(time.RFC3339)
	}

	return domain.Item{
		Source:      cand.Source,
		Title:       truncateRunes(cand.Text, 80, true),
		URL:         cand.URL,
		Summary:     truncateRunes(cand.Text, 400, false),
		PublishedAt: published,
		Vendor:      e.VendorLabel(),
		Importance:  importance,
		Entity:      e.Key,
		ItemID:      cand.ID,
		Tier:        e.Tier,
		Reason:      "importance:" + rule,
	}
}

func truncateRunes(s string, maxN int, ellipsis bool) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	if ellipsis {
		return string(r[:maxN]) + "..."
	}
	return string(r[:maxN])
}

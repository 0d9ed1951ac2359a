// Package audit emits one structured record for every pass/drop decision the
// pipeline takes. The trail is append-only JSONL, write-once, and best-effort:
// a failing sink must never affect scheduling or delivery.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

// Pipeline stages, in order of traversal.
const (
	StageRaw        = "raw"
	StageWindow     = "window"
	StageImportance = "importance"
	StageNoise      = "noise"
	StageAccept     = "accept"
	StageDedupe     = "dedupe"
	StagePush       = "push"
)

const (
	DecisionPass = "pass"
	DecisionDrop = "drop"
)

// Reason codes. Each (stage, decision) pair maps to exactly one code so the
// trail can be aggregated offline without parsing matched rules.
const (
	ReasonRawFetched       = "RAW_FETCHED"
	ReasonWindowInRange    = "WINDOW_IN_RANGE"
	ReasonWindowOld        = "WINDOW_OLD"
	ReasonImportanceFilter = "IMPORTANCE_FILTER"
	ReasonImportanceNormal = "IMPORTANCE_NORMAL"
	ReasonImportancePass   = "IMPORTANCE_PASS"
	ReasonNoiseKeyword     = "NOISE_KEYWORD"
	ReasonNoisePass        = "NOISE_PASS"
	ReasonAcceptStaged     = "ACCEPT_STAGED"
	ReasonDedupeNew        = "DEDUPE_NEW"
	ReasonDedupeHash       = "DEDUPE_HASH"
	ReasonPushOK           = "PUSH_OK"
	ReasonPushFail         = "PUSH_FAIL"
)

// Record is one immutable audit tuple. Extra carries stage-specific context
// (e.g. batch item ids on push records).
type Record struct {
	Timestamp   string         `json:"timestamp"`
	PollID      string         `json:"poll_id"`
	RunID       string         `json:"run_id"`
	Entity      string         `json:"entity"`
	ItemID      string         `json:"item_id"`
	Tier        string         `json:"tier"`
	Stage       string         `json:"stage"`
	Decision    string         `json:"decision"`
	ReasonCode  string         `json:"reason_code"`
	MatchedRule string         `json:"matched_rule,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Sink receives decision records. Implementations must be safe for use from
// the scheduling goroutine and must swallow their own failures.
type Sink interface {
	Log(rec Record)
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) Log(Record) {}

// FileSink appends records to a JSONL file.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	log logx.Logger
}

// NewFileSink opens (or creates) the JSONL file at path, creating parent
// directories as needed.
func NewFileSink(path string, log logx.Logger) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), log: log}, nil
}

// Log appends one record. Failures are logged at debug level and otherwise
// ignored: decision logging is best-effort by contract.
func (s *FileSink) Log(rec Record) {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if rec.RunID == "" {
		rec.RunID = rec.PollID
	}

	b, err := json.Marshal(rec)
	if err != nil {
		s.log.Debug("audit record marshal failed", logx.Err(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		s.log.Debug("audit record write failed", logx.Err(err))
		return
	}
	// Flush per record: the file doubles as a live debugging feed and rounds
	// are minutes apart, so buffering across records buys nothing.
	if err := s.w.Flush(); err != nil {
		s.log.Debug("audit record flush failed", logx.Err(err))
	}
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w != nil {
		_ = s.w.Flush()
		s.w = nil
	}
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		return err
	}
	return nil
}

package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

func TestFileSinkAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "decision.jsonl")
	sink, err := NewFileSink(path, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	sink.Log(Record{
		PollID:     "p1",
		Entity:     "acct",
		ItemID:     "42",
		Tier:       "S",
		Stage:      StageWindow,
		Decision:   DecisionPass,
		ReasonCode: ReasonWindowInRange,
	})
	sink.Log(Record{
		PollID:      "p1",
		Entity:      "acct",
		ItemID:      "43",
		Tier:        "S",
		Stage:       StageNoise,
		Decision:    DecisionDrop,
		ReasonCode:  ReasonNoiseKeyword,
		MatchedRule: "hiring",
	})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trail: %v", err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].Timestamp == "" {
		t.Fatalf("timestamp not defaulted")
	}
	if recs[0].RunID != "p1" {
		t.Fatalf("run id not defaulted to poll id: %q", recs[0].RunID)
	}
	if recs[1].MatchedRule != "hiring" || recs[1].ReasonCode != ReasonNoiseKeyword {
		t.Fatalf("second record mangled: %+v", recs[1])
	}
}

func TestFileSinkLogAfterCloseIsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decision.jsonl")
	sink, err := NewFileSink(path, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Must not panic or write.
	sink.Log(Record{PollID: "p2", Stage: StageRaw, Decision: DecisionPass})
}

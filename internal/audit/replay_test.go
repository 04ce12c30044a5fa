package audit

import (
	"path/filepath"
	"testing"
	"time"
)

// writeTestLog creates a temp audit log with known entries for testing.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	log, err := OpenFile(path, "sha256:test")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	ts := func(sec int) string { return base.Add(time.Duration(sec) * time.Second).Format(TimestampFormat) }

	entries := []Entry{
		{Seq: 1, Timestamp: ts(0), SessionID: "s-aaa", Category: "filesystem_write", Surface: "write_file", Target: "/tmp/out.txt", Decision: "allow", Reason: "under allowed root"},
		{Seq: 2, Timestamp: ts(2), SessionID: "s-aaa", Category: "env_mutation", Surface: "setenv", Target: "PYTHONPATH", Decision: "allow"},
		{Seq: 1, Timestamp: ts(4), SessionID: "s-bbb", Category: "network", Surface: "dial", Target: "example.com:80", Decision: "block"},
		{Seq: 3, Timestamp: ts(6), SessionID: "s-aaa", Category: "network", Surface: "dial", Target: "example.com:443", Decision: "block", Reason: "network sockets are not allowed in test mode"},
		{Seq: 4, Timestamp: ts(8), SessionID: "s-aaa", Category: "test_outcome", Target: "TestSnapshot", Decision: "xfail", Reason: "snapshot fixture not regenerated"},
		{Seq: 5, Timestamp: ts(10), SessionID: "s-aaa", Category: "test_outcome", Target: "TestNetwork", Decision: "skip", Reason: "needs network"},
	}

	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}

	return path
}

func TestReplayFiltersBySessionID(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 5 {
		t.Errorf("expected 5 entries for s-aaa, got %d", len(result.Entries))
	}

	for _, e := range result.Entries {
		if e.SessionID != "s-aaa" {
			t.Errorf("unexpected session ID: %s", e.SessionID)
		}
	}
}

func TestReplayEmptyFilterMatchesAll(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.Total != 6 {
		t.Errorf("expected 6 entries, got %d", result.Summary.Total)
	}
}

func TestReplayFiltersByCategoryAndDecision(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{Category: "network", Decision: "block"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 network blocks across sessions, got %d", len(result.Entries))
	}
}

func TestReplayTimeRange(t *testing.T) {
	path := writeTestLog(t)
	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"from", base.Add(5 * time.Second), time.Time{}, 3},
		{"to", time.Time{}, base.Add(3 * time.Second), 2},
		{"both", base.Add(1 * time.Second), base.Add(7 * time.Second), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Replay(path, ReplayFilter{SessionID: "s-aaa", From: tt.from, To: tt.to})
			if err != nil {
				t.Fatal(err)
			}
			if len(result.Entries) != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, len(result.Entries))
			}
		})
	}
}

func TestReplayEmptyResult(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-nonexistent"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(result.Entries))
	}
	if result.Summary.Total != 0 {
		t.Errorf("expected total 0, got %d", result.Summary.Total)
	}
}

func TestReplaySummaryCountsCorrect(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	s := result.Summary
	if s.Total != 5 {
		t.Errorf("expected total 5, got %d", s.Total)
	}
	if s.AllowCount != 2 || s.BlockCount != 1 || s.SkipCount != 1 || s.XfailCount != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.ByCategory["test_outcome"] != 2 {
		t.Errorf("expected 2 test_outcome entries, got %d", s.ByCategory["test_outcome"])
	}
	if s.FirstTimestamp != "2025-01-15T14:00:00.000Z" || s.LastTimestamp != "2025-01-15T14:00:10.000Z" {
		t.Errorf("unexpected time bounds: %s .. %s", s.FirstTimestamp, s.LastTimestamp)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := Replay(filepath.Join(t.TempDir(), "none.jsonl"), ReplayFilter{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSummarizeEvents(t *testing.T) {
	l := NewLog()
	l.Append(blockRecord("a:1"))
	l.Append(blockRecord("b:2"))

	result := Summarize("s-1", l.Snapshot())
	if result.Summary.BlockCount != 2 || len(result.Entries) != 2 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if result.Entries[1].Seq != 2 {
		t.Errorf("expected entries in sequence order")
	}
}

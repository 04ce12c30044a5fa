package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatTimelineHeaderAndSummary(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	if !strings.Contains(out, "Session: s-aaa") {
		t.Error("expected header to contain session ID")
	}
	if !strings.Contains(out, "2025-01-15 14:00:00 to 14:00:10 UTC") {
		t.Errorf("expected time range in header, got:\n%s", out)
	}
	if !strings.Contains(out, "2 allow, 1 block, 1 skip, 1 xfail") {
		t.Errorf("expected decision counts in summary, got:\n%s", out)
	}
	if !strings.Contains(out, "network=1") {
		t.Errorf("expected category counts in summary, got:\n%s", out)
	}
}

func TestFormatTimelineEntryColumns(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	for _, want := range []string{"BLOCK", "ALLOW", "XFAIL", "SKIP", "filesystem_write", "example.com:443", "(needs network)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in timeline:\n%s", want, out)
		}
	}
	if strings.Contains(out, "(under allowed root)") {
		t.Error("allow reasons should not be tagged")
	}
}

func TestFormatJSONValid(t *testing.T) {
	path := writeTestLog(t)
	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := FormatJSON(result)
	if err != nil {
		t.Fatal(err)
	}

	var parsed ReplayResult
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.SessionID != "s-aaa" || len(parsed.Entries) != 5 {
		t.Errorf("unexpected parsed result: session=%s entries=%d", parsed.SessionID, len(parsed.Entries))
	}
}

func TestFormatTimelineEmptyEntries(t *testing.T) {
	result := &ReplayResult{SessionID: "s-empty"}
	out := FormatTimeline(result)
	if !strings.Contains(out, "No entries found") {
		t.Errorf("expected 'No entries found', got: %s", out)
	}
}

func TestFormatEntry(t *testing.T) {
	line := FormatEntry(Entry{Seq: 3, Timestamp: "2025-01-15T14:00:06.000Z", Category: "network",
		Surface: "dial", Target: "example.com:443", Decision: "block", Reason: "nope"})
	want := "14:00:06 #3 BLOCK network/dial example.com:443 (nope)"
	if line != want {
		t.Errorf("got %q, want %q", line, want)
	}
}

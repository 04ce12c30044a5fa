package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/testguard/internal/model"
)

// ReplayFilter holds filtering criteria for session replay.
// Zero-valued fields match everything.
type ReplayFilter struct {
	SessionID string
	Category  model.Category
	Decision  model.Decision
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// ReplaySummary holds decision counts and metadata for a replayed session.
type ReplaySummary struct {
	Total          int            `json:"total"`
	AllowCount     int            `json:"allow_count"`
	BlockCount     int            `json:"block_count"`
	SkipCount      int            `json:"skip_count"`
	XfailCount     int            `json:"xfail_count"`
	ByCategory     map[string]int `json:"by_category,omitempty"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and summary for a session replay.
type ReplayResult struct {
	SessionID string        `json:"session_id,omitempty"`
	Entries   []Entry       `json:"entries"`
	Summary   ReplaySummary `json:"summary"`
}

// Match reports whether entry passes the filter.
func (f ReplayFilter) Match(entry Entry) bool {
	if f.SessionID != "" && entry.SessionID != f.SessionID {
		return false
	}
	if f.Category != "" && entry.Category != string(f.Category) {
		return false
	}
	if f.Decision != "" && entry.Decision != string(f.Decision) {
		return false
	}

	// Time range filtering
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(TimestampFormat, entry.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

// Replay reads the audit file and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{SessionID: filter.SessionID}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		if !filter.Match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

// Summarize builds a ReplayResult from in-memory events.
func Summarize(sessionID string, events []Event) *ReplayResult {
	result := &ReplayResult{SessionID: sessionID}
	for _, ev := range events {
		entry := ev.Entry("")
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}
	return result
}

func (s *ReplaySummary) add(entry Entry) {
	s.Total++

	switch model.Decision(entry.Decision) {
	case model.Allow:
		s.AllowCount++
	case model.Block:
		s.BlockCount++
	case model.Skip:
		s.SkipCount++
	case model.Xfail:
		s.XfailCount++
	}

	if s.ByCategory == nil {
		s.ByCategory = make(map[string]int)
	}
	s.ByCategory[entry.Category]++

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}

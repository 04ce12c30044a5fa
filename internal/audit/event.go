package audit

import (
	"time"

	"github.com/ppiankov/testguard/internal/model"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Record is what a caller hands to Log.Append. The log assigns the
// sequence number, id and timestamp.
type Record struct {
	SessionID string
	Category  model.Category
	Surface   string
	Target    string
	Decision  model.Decision
	Reason    string
	RuleID    string
}

// Event is one immutable audit record as held in memory.
type Event struct {
	Seq       uint64         `json:"seq"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	SessionID string         `json:"session_id"`
	Category  model.Category `json:"category"`
	Surface   string         `json:"surface,omitempty"`
	Target    string         `json:"target"`
	Decision  model.Decision `json:"decision"`
	Reason    string         `json:"reason"`
	RuleID    string         `json:"rule_id,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit file.
// All fields are scalars so json.Marshal field order is fixed and
// hashing is reproducible.
type Entry struct {
	Seq        uint64 `json:"seq"`
	ID         string `json:"id"`
	Timestamp  string `json:"ts"`
	SessionID  string `json:"session_id"`
	Category   string `json:"category"`
	Surface    string `json:"surface,omitempty"`
	Target     string `json:"target"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
	RuleID     string `json:"rule_id,omitempty"`
	PolicyHash string `json:"policy_hash"`
	PrevHash   string `json:"prev_hash"`
}

// Entry converts e to its file form. PrevHash is filled in by the file sink.
func (e Event) Entry(policyHash string) Entry {
	return Entry{
		Seq:        e.Seq,
		ID:         e.ID,
		Timestamp:  e.Timestamp.UTC().Format(TimestampFormat),
		SessionID:  e.SessionID,
		Category:   string(e.Category),
		Surface:    e.Surface,
		Target:     e.Target,
		Decision:   string(e.Decision),
		Reason:     e.Reason,
		RuleID:     e.RuleID,
		PolicyHash: policyHash,
	}
}

// Event converts a file entry back to an Event. An unparseable timestamp
// yields the zero time.
func (e Entry) Event() Event {
	ts, _ := time.Parse(TimestampFormat, e.Timestamp)
	return Event{
		Seq:       e.Seq,
		ID:        e.ID,
		Timestamp: ts,
		SessionID: e.SessionID,
		Category:  model.Category(e.Category),
		Surface:   e.Surface,
		Target:    e.Target,
		Decision:  model.Decision(e.Decision),
		Reason:    e.Reason,
		RuleID:    e.RuleID,
	}
}

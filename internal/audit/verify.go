package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of an audit file verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Sessions  int    `json:"sessions"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// maxLineSize bounds one JSONL entry; targets are paths and commands.
const maxLineSize = 1 << 20

// sessionTail is the last entry seen for one session.
type sessionTail struct {
	seq        uint64
	policyHash string
	line       int
}

// chain checks entries in file order.
type chain struct {
	prevHash string
	sessions map[string]sessionTail
}

func newChain() *chain {
	return &chain{prevHash: GenesisHash, sessions: make(map[string]sessionTail)}
}

// next checks one line against everything before it and advances the chain.
func (c *chain) next(line []byte, n int) error {
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return fmt.Errorf("parse error: %v", err)
	}

	if entry.PrevHash != c.prevHash {
		if n == 1 {
			return fmt.Errorf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
		}
		return fmt.Errorf("hash mismatch: expected %s, got %s", c.prevHash, entry.PrevHash)
	}

	tail, seen := c.sessions[entry.SessionID]
	switch {
	case !seen && entry.Seq != 1:
		return fmt.Errorf("session %q starts at seq %d, expected 1", entry.SessionID, entry.Seq)
	case seen && entry.Seq != tail.seq+1:
		return fmt.Errorf("session %q seq %d follows seq %d (line %d)", entry.SessionID, entry.Seq, tail.seq, tail.line)
	case seen && entry.PolicyHash != tail.policyHash:
		return fmt.Errorf("session %q policy_hash changed from %s to %s", entry.SessionID, tail.policyHash, entry.PolicyHash)
	}

	c.sessions[entry.SessionID] = sessionTail{seq: entry.Seq, policyHash: entry.PolicyHash, line: n}
	c.prevHash = HashLine(line)
	return nil
}

// Verify reads a JSONL audit file and checks it end to end: every entry
// must carry the hash of the line before it, and within each session the
// sequence numbers must run 1, 2, 3... under a single policy hash.
// The first failure is reported with its line number.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	c := newChain()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		if err := c.next(scanner.Bytes(), n); err != nil {
			return VerifyResult{Lines: n - 1, Error: err.Error(), ErrorLine: n}
		}
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: n, Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Lines: n, Sessions: len(c.sessions)}
}

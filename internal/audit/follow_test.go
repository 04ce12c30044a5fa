package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/testguard/internal/model"
)

func collectFollow(t *testing.T, path string, fromStart bool) (<-chan Entry, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Entry, 16)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, fromStart, func(e Entry) { out <- e })
	}()
	return out, cancel, done
}

func waitEntry(t *testing.T, ch <-chan Entry) Entry {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for followed entry")
		return Entry{}
	}
}

func TestFollowFromStartThenNewEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l := openSink(t, path, "sha256:p")
	evs := sessionEvents("s-follow", 1, 2)
	evs[0].Target = "first"
	writeEvents(t, l, evs[:1])

	ch, cancel, done := collectFollow(t, path, true)
	defer cancel()

	if got := waitEntry(t, ch); got.Target != "first" {
		t.Fatalf("expected existing entry first, got %+v", got)
	}

	// Give the watcher time to register before appending.
	time.Sleep(100 * time.Millisecond)
	evs[1].Target = "second"
	evs[1].Decision = model.Block
	writeEvents(t, l, evs[1:])

	if got := waitEntry(t, ch); got.Target != "second" || got.Decision != "block" {
		t.Fatalf("expected appended entry, got %+v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow returned %v", err)
	}
	l.Close()
}

func TestFollowPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.jsonl")
	os.WriteFile(path, nil, 0600)

	ch, cancel, _ := collectFollow(t, path, false)
	defer cancel()
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	f.WriteString(`{"seq":9,"target":"spl`)
	time.Sleep(100 * time.Millisecond)
	f.WriteString(`it","decision":"block"}` + "\n")

	if got := waitEntry(t, ch); got.Seq != 9 || got.Target != "split" {
		t.Fatalf("expected reassembled entry, got %+v", got)
	}
}

func TestFollowMissingFile(t *testing.T) {
	err := Follow(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"), true, func(Entry) {})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// ErrLogRemoved is returned by Follow when the followed file is removed or renamed.
var ErrLogRemoved = errors.New("audit: followed log was removed")

// Follow streams entries appended to the audit file at path, calling fn
// for each complete line. With fromStart the existing entries are
// delivered first. Malformed lines are skipped. Blocks until ctx is
// cancelled.
func Follow(ctx context.Context, path string, fromStart bool, fn func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: follow: %w", err)
	}
	defer f.Close()

	if !fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("audit: follow: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}

	t := &tailer{r: bufio.NewReader(f), fn: fn}
	t.drain()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				t.drain()
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.drain()
				return ErrLogRemoved
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher error: %w", err)
		}
	}
}

type tailer struct {
	r       *bufio.Reader
	partial []byte
	fn      func(Entry)
}

// drain reads every complete line currently available. A trailing
// fragment without newline is kept until the rest arrives.
func (t *tailer) drain() {
	for {
		chunk, err := t.r.ReadBytes('\n')
		t.partial = append(t.partial, chunk...)
		if err != nil {
			return
		}
		line := t.partial[:len(t.partial)-1]
		var entry Entry
		if json.Unmarshal(line, &entry) == nil {
			t.fn(entry)
		}
		t.partial = t.partial[:0]
	}
}

// Package trigger implements the per-agent, append-only trigger queue that
// the router (sole writer) and the corresponding agent wrapper (sole
// reader) use to coordinate across processes purely through a flat file
// and its monotonic offset (spec.md §4.3, §9 "Concurrency model").
package trigger

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/agentchattr/agentchattr/internal/apperr"
)

// Entry is one queued wake-up for an agent.
type Entry struct {
	Channel    string `json:"channel"`
	Prompt     string `json:"prompt"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

// Prompt formats the short wake-up text injected into the agent's
// terminal for a message posted to channel (spec.md §4.4 "Trigger
// watcher").
func Prompt(channel string) string {
	return "mcp read #" + channel
}

// Writer appends entries to a per-agent queue file. Safe for concurrent
// use by a single router instance.
type Writer struct {
	path string
	f    *os.File
}

// NewWriter opens (creating if needed) the queue file at path for
// appending.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "open trigger queue", err)
	}
	return &Writer{path: path, f: f}, nil
}

// Enqueue appends one entry for channel, timestamped now.
func (w *Writer) Enqueue(channel string) error {
	line, err := json.Marshal(Entry{Channel: channel, Prompt: Prompt(channel), EnqueuedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	// Reopen by path on every append: the wrapper's Truncate replaces the
	// file with a new one, and a descriptor held from NewWriter would keep
	// appending to the replaced file.
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "open trigger queue", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return apperr.Wrap(apperr.Persistence, "append trigger entry", err)
	}
	return f.Sync()
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Truncate atomically empties the queue file at path, dropping any
// entries left over from a crashed or stale wrapper session. Per
// spec.md §9, truncation (a non-append mutation) is done write-to-temp
// then rename so a concurrent reader never observes a half-truncated
// file.
func Truncate(path string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, nil, 0o644); err != nil {
		return apperr.Wrap(apperr.Persistence, "stage trigger queue truncation", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Wrap(apperr.Persistence, "commit trigger queue truncation", err)
	}
	return nil
}

// Reader tails a queue file from a remembered offset, tolerating partial
// trailing lines written concurrently by the Writer.
type Reader struct {
	path   string
	offset int64
}

// NewReader opens path for tailing, starting at the current end of file
// so a freshly restarted wrapper does not replay entries enqueued before
// it truncated the queue on startup.
func NewReader(path string) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "open trigger queue for read", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "stat trigger queue", err)
	}
	return &Reader{path: path, offset: info.Size()}, nil
}

// Poll returns any whole new lines appended since the last call,
// advancing the remembered offset only past the bytes it fully consumed.
func (r *Reader) Poll() ([]Entry, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "open trigger queue", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "stat trigger queue", err)
	}
	if info.Size() < r.offset {
		// File was truncated out from under us; restart from the top.
		r.offset = 0
	}

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "seek trigger queue", err)
	}

	reader := bufio.NewReader(f)
	var entries []Entry
	consumed := r.offset
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			consumed += int64(len(line))
			var e Entry
			if jsonErr := json.Unmarshal(line[:len(line)-1], &e); jsonErr == nil {
				entries = append(entries, e)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "read trigger queue", err)
		}
	}
	r.offset = consumed
	return entries, nil
}

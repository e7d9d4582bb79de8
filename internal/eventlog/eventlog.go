// Package eventlog keeps a bounded, in-memory record of everything the bot
// does. Operators read it as a feed; every other component writes to it.
//
// Contract:
//   - Entries are ordered most-recent-first.
//   - The buffer never exceeds its capacity; the oldest entry is evicted.
//   - Reads return snapshots, never the live slice.
//   - Record never fails.
package eventlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/rs/zerolog"
)

// DefaultCapacity bounds the feed so it cannot grow without limit.
const DefaultCapacity = 1000

// Kind tags an entry with its severity.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
	KindSystem  Kind = "system"

	// KindAll is a query filter, never a stored kind.
	KindAll Kind = "all"
)

// Entry is one feed item. Immutable once recorded.
type Entry struct {
	Kind      Kind      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// consoleStyles mirrors the operator console formatting per severity.
var consoleStyles = map[Kind]color.Style{
	KindSuccess: color.New(color.FgGreen, color.Bold),
	KindError:   color.New(color.FgRed, color.Bold),
	KindInfo:    color.New(color.FgBlue, color.Bold),
	KindSystem:  color.New(color.FgWhite, color.Bold),
}

// Feed is the process-wide event log. Safe for concurrent use.
type Feed struct {
	log  zerolog.Logger
	echo bool

	mu      sync.Mutex
	cap     int
	entries []Entry // most recent first
}

// Option configures a Feed.
type Option func(*Feed)

// WithCapacity overrides the default buffer bound. Values below 1 are
// ignored.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.cap = n
		}
	}
}

// WithConsoleEcho toggles the colored console side channel.
func WithConsoleEcho(on bool) Option {
	return func(f *Feed) { f.echo = on }
}

// New builds a Feed that mirrors entries into log as a structured side
// channel.
func New(log zerolog.Logger, opts ...Option) *Feed {
	f := &Feed{
		log:  log,
		echo: true,
		cap:  DefaultCapacity,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Record appends an entry at the head and evicts from the tail past
// capacity. It cannot fail.
func (f *Feed) Record(kind Kind, message string) {
	entry := Entry{Kind: kind, Message: message, Timestamp: time.Now().UTC()}

	f.sink(entry)

	f.mu.Lock()
	f.entries = append(f.entries, Entry{})
	copy(f.entries[1:], f.entries)
	f.entries[0] = entry
	if len(f.entries) > f.cap {
		f.entries = f.entries[:f.cap]
	}
	f.mu.Unlock()
}

// Recordf is Record with fmt formatting.
func (f *Feed) Recordf(kind Kind, format string, args ...any) {
	f.Record(kind, fmt.Sprintf(format, args...))
}

// Query returns a snapshot of entries, newest first. An empty filter or
// KindAll returns everything; otherwise only entries of that kind, relative
// order preserved.
func (f *Feed) Query(filter Kind) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	if filter == "" || filter == KindAll {
		out := make([]Entry, len(f.entries))
		copy(out, f.entries)
		return out
	}
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		if e.Kind == filter {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the current number of buffered entries.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Clear empties the buffer. Maintenance and tests only.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.entries = nil
	f.mu.Unlock()
}

// sink writes the side channel: a colored console line for operators and a
// structured log event. Not part of the data contract.
func (f *Feed) sink(e Entry) {
	if f.echo {
		style, ok := consoleStyles[e.Kind]
		if !ok {
			style = consoleStyles[KindSystem]
		}
		style.Printf("[%s] %s\n", strings.ToUpper(string(e.Kind)), e.Message)
	}

	ev := f.log.Info()
	if e.Kind == KindError {
		ev = f.log.Error()
	}
	ev.Str("feed", string(e.Kind)).Msg(e.Message)
}

// Package notify delivers user-facing messages about failed remote
// operations.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Severity grades a message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Message is one notification. Lines render in order; the first is the
// headline.
type Message struct {
	Lines    []string
	Severity Severity
}

// Text joins the lines with newlines.
func (m Message) Text() string { return strings.Join(m.Lines, "\n") }

// Errorf builds a single-line error message.
func Errorf(format string, args ...any) Message {
	return Message{Lines: []string{fmt.Sprintf(format, args...)}, Severity: SeverityError}
}

// Notifier receives messages. Post must not block for long; it is called
// from fetch goroutines.
type Notifier interface {
	Post(ctx context.Context, msg Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message)

func (f NotifierFunc) Post(ctx context.Context, msg Message) { f(ctx, msg) }

// Nop discards every message.
var Nop Notifier = NotifierFunc(func(context.Context, Message) {})

// SlogNotifier writes messages to a logger.
type SlogNotifier struct {
	Logger *slog.Logger
}

// NewSlogNotifier returns a notifier logging through logger, or
// slog.Default when logger is nil.
func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogNotifier{Logger: logger}
}

func (n *SlogNotifier) Post(ctx context.Context, msg Message) {
	level := slog.LevelInfo
	switch msg.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	headline := ""
	if len(msg.Lines) > 0 {
		headline = msg.Lines[0]
	}
	attrs := []any{}
	if len(msg.Lines) > 1 {
		attrs = append(attrs, "details", msg.Lines[1:])
	}
	n.Logger.Log(ctx, level, headline, attrs...)
}

// Recorder keeps every posted message. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	posted   chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{posted: make(chan struct{}, 1)}
}

func (r *Recorder) Post(_ context.Context, msg Message) {
	r.mu.Lock()
	msg.Lines = append([]string(nil), msg.Lines...)
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	select {
	case r.posted <- struct{}{}:
	default:
	}
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Posted signals after each Post. Signals coalesce.
func (r *Recorder) Posted() <-chan struct{} { return r.posted }

// Reset drops recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}

package audit

import (
	"context"
	"sync"
	"time"
)

// Logger is the operational logger that receives store failures.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Listener is told about every entry that reached the store.
type Listener interface {
	OnLogEntry(e Entry)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Entry)

// OnLogEntry calls f(e).
func (f ListenerFunc) OnLogEntry(e Entry) { f(e) }

// Log wraps a Repository with listener fan-out and an error side channel.
// It satisfies Repository itself.
//
// Thread Safety: all methods are safe for concurrent use.
type Log struct {
	repo   Repository
	logger Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewLog creates a Log over repo. Store failures go to logger.
func NewLog(repo Repository, logger Logger) *Log {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Log{repo: repo, logger: logger}
}

// Subscribe registers a listener for stored entries.
func (l *Log) Subscribe(li Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, li)
}

// Append stores e and notifies listeners. The store error is returned and
// also reported to the operational logger.
func (l *Log) Append(ctx context.Context, e *Entry) error {
	if err := l.repo.Append(ctx, e); err != nil {
		l.logger.Error("device log write failed",
			"device_id", e.DeviceID,
			"message", e.Message,
			"error", err,
		)
		return err
	}
	l.notify(*e)
	return nil
}

// Record is Append for callers that must not fail because logging failed.
func (l *Log) Record(ctx context.Context, e *Entry) {
	_ = l.Append(ctx, e) //nolint:errcheck // reported inside Append
}

// LatestWithMessage reads through to the store.
func (l *Log) LatestWithMessage(ctx context.Context, deviceID int64, marker string, since time.Time) (*Entry, error) {
	return l.repo.LatestWithMessage(ctx, deviceID, marker, since)
}

// Query reads through to the store.
func (l *Log) Query(ctx context.Context, filter Filter) (*ListResult, error) {
	return l.repo.Query(ctx, filter)
}

func (l *Log) notify(e Entry) {
	l.mu.RLock()
	listeners := make([]Listener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.RUnlock()

	for _, li := range listeners {
		li.OnLogEntry(e)
	}
}

var _ Repository = (*Log)(nil)

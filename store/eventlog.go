package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
)

// DefaultChannelCapacity is the default buffer size for queued log writes.
const DefaultChannelCapacity = 100

// Recent() limit handling.
const (
	defaultRecentLimit = 120
	maxRecentLimit     = 300
)

// queuedEvent pairs a log entry with its owning user.
type queuedEvent struct {
	userID    string
	entry     core.LogEntry
	timestamp time.Time
}

// Recorder writes activity-log events to the event_logs table without
// blocking the generation pipeline. Events are queued on a buffered
// channel and written by a background goroutine; when the queue is full
// the event is dropped rather than stalling a frame request.
type Recorder struct {
	db      *sql.DB
	logger  *logging.Logger
	events  chan queuedEvent
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewRecorder creates a Recorder with the default channel capacity.
// Call Start before recording events and Close during shutdown.
func NewRecorder(db *sql.DB, logger *logging.Logger) *Recorder {
	return NewRecorderWithCapacity(db, logger, DefaultChannelCapacity)
}

// NewRecorderWithCapacity creates a Recorder with a custom buffer size.
func NewRecorderWithCapacity(db *sql.DB, logger *logging.Logger, capacity int) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		db:     db,
		logger: logger.Named("eventlog"),
		events: make(chan queuedEvent, capacity),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the background write goroutine.
// Safe to call multiple times; only the first call has effect.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true
	r.wg.Add(1)
	go r.processEvents()
}

// Record queues an event for async persistence.
// Returns false if the queue is full and the event was dropped.
func (r *Recorder) Record(userID string, entry core.LogEntry) bool {
	select {
	case r.events <- queuedEvent{userID: userID, entry: entry, timestamp: time.Now().UTC()}:
		return true
	default:
		r.logger.Warn("event log queue full, dropping event",
			zap.String("user_id", userID),
			zap.String("event", entry.Event))
		return false
	}
}

// Recent returns the newest events for a user, newest first.
// The limit is clamped to [1, 300]; zero or negative means 120.
func (r *Recorder) Recent(ctx context.Context, userID string, limit int) ([]core.LogEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT source, level, event, message, meta
		FROM event_logs
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event logs: %w", err)
	}
	defer rows.Close()

	var entries []core.LogEntry
	for rows.Next() {
		var entry core.LogEntry
		var metaJSON string
		if err := rows.Scan(&entry.Source, &entry.Level, &entry.Event, &entry.Message, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &entry.Meta); err != nil {
				entry.Meta = nil
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close stops the background goroutine, draining any queued events
// before returning.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// processEvents is the background goroutine that persists queued events.
func (r *Recorder) processEvents() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			r.drain()
			return
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.write(ev)
		}
	}
}

// drain flushes any events still buffered at shutdown.
func (r *Recorder) drain() {
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.write(ev)
		default:
			return
		}
	}
}

func (r *Recorder) write(ev queuedEvent) {
	metaJSON := "{}"
	if len(ev.entry.Meta) > 0 {
		if encoded, err := json.Marshal(ev.entry.Meta); err == nil {
			metaJSON = string(encoded)
		}
	}

	_, err := r.db.Exec(`
		INSERT INTO event_logs (user_id, source, level, event, message, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.userID, ev.entry.Source, ev.entry.Level, ev.entry.Event,
		ev.entry.Message, metaJSON, ev.timestamp)
	if err != nil {
		r.logger.Error("failed to write event log", zap.Error(err))
	}
}

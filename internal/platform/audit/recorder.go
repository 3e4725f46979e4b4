package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/telemetry"
)

const defaultBuffer = 256

// Recorder writes entries on a background goroutine so auditing never
// slows down or fails a request. When the buffer is full the entry is
// dropped and counted.
type Recorder struct {
	store   Store
	queue   chan *Entry
	metrics *telemetry.TelemetryProvider
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(store Store, buffer int, metrics *telemetry.TelemetryProvider, logger zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store:   store,
		queue:   make(chan *Entry, buffer),
		metrics: metrics,
		logger:  logger.With().Str("component", "audit").Logger(),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e without blocking. It reports whether e was accepted.
func (r *Recorder) Record(e *Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		select {
		case r.queue <- e:
			return true
		default:
		}
	}
	r.metrics.RecordAuditDropped()
	r.logger.Warn().Str("action", e.Action).Str("path", e.Path).Msg("audit entry dropped")
	return false
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.Insert(ctx, e); err != nil {
			r.logger.Error().Err(err).
				Str("request_id", e.RequestID).
				Str("action", e.Action).
				Msg("failed to record audit entry")
		}
		cancel()
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx
// to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

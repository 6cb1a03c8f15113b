package db

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

// DefaultRecorderBuffer is the number of records a Recorder queues before
// dropping.
const DefaultRecorderBuffer = 256

// Recorder is a telemetry.Sink that writes records to a session from a
// worker goroutine. Publish never blocks: when the queue is full the record
// is dropped and counted.
type Recorder struct {
	db      *DB
	session string
	queue   chan telemetry.Record

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// RecorderStats counts what happened to published records.
type RecorderStats struct {
	Session string `json:"session"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// NewRecorder starts a recorder for session. buffer <= 0 uses
// DefaultRecorderBuffer. Close must be called to flush and stop it.
func NewRecorder(db *DB, session string, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	r := &Recorder{
		db:      db,
		session: session,
		queue:   make(chan telemetry.Record, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Session returns the session the recorder writes to.
func (r *Recorder) Session() string {
	return r.session
}

// Publish implements telemetry.Sink.
func (r *Recorder) Publish(rec telemetry.Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- rec:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			opsf("recorder queue full: %d records dropped", n)
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		if err := r.db.RecordTelemetry(r.session, rec); err != nil {
			if n := r.failed.Add(1); n == 1 || n%100 == 0 {
				opsf("recording telemetry failed (%d so far): %v", n, err)
			}
			continue
		}
		r.written.Add(1)
	}
}

// Close stops accepting records, writes the queued ones and waits for the
// worker to exit.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	<-r.done
	diagf("recorder for session %s closed: %+v", r.session, r.Stats())
	return nil
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Session: r.session,
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

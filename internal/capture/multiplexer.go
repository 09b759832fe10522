package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibikilab/kikitori/internal/metrics"
)

const feedQueueDepth = 256

// Multiplexer owns the capture sinks of one session, keyed by user ID.
// Each sink is serviced by its own worker goroutine, so chunks for one user
// are written in arrival order while closes and feeds of unrelated users
// never wait on each other.
type Multiplexer struct {
	sessionID string
	newSink   SinkFactory
	met       *metrics.Metrics

	mu      sync.Mutex
	workers map[string]*sinkWorker
	closed  bool
}

func NewMultiplexer(sessionID string, newSink SinkFactory, met *metrics.Metrics) *Multiplexer {
	return &Multiplexer{
		sessionID: sessionID,
		newSink:   newSink,
		met:       met,
		workers:   make(map[string]*sinkWorker),
	}
}

func (m *Multiplexer) Open(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMultiplexerClosed
	}
	if _, exists := m.workers[userID]; exists {
		return ErrCaptureAlreadyOpen
	}
	sink, err := m.newSink(m.sessionID, userID)
	if err != nil {
		return fmt.Errorf("create capture sink: %w", err)
	}
	w := newSinkWorker(m.sessionID, userID, sink)
	m.workers[userID] = w
	go w.run()
	if m.met != nil {
		m.met.CapturesOpened.Inc()
	}
	slog.Info("capture opened", "session_id", m.sessionID, "user_id", userID)
	return nil
}

// Feed appends one raw chunk to the user's open sink. The chunk is dropped,
// not blocked on, when the worker's queue is full.
func (m *Multiplexer) Feed(userID string, chunk []byte) error {
	m.mu.Lock()
	w, ok := m.workers[userID]
	m.mu.Unlock()
	if !ok {
		return ErrCaptureNotOpen
	}
	if w.enqueue(chunk) {
		if m.met != nil {
			m.met.ChunksFed.Inc()
		}
		return nil
	}
	if m.met != nil {
		m.met.ChunksDropped.Inc()
	}
	slog.Warn("capture queue full; dropping chunk", "session_id", m.sessionID, "user_id", userID, "chunk_bytes", len(chunk))
	return nil
}

// Close stops the user's capture and returns a channel that yields the
// terminal Result once buffered chunks are drained and conversion finishes.
func (m *Multiplexer) Close(userID string) (<-chan Result, error) {
	m.mu.Lock()
	w, ok := m.workers[userID]
	if ok {
		delete(m.workers, userID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrCaptureNotOpen
	}
	w.stop()
	if m.met != nil {
		m.met.CapturesClosed.Inc()
	}
	return w.done, nil
}

// CloseAll stops every open capture and marks the multiplexer closed.
// Already-captured bytes are drained and converted, never discarded.
func (m *Multiplexer) CloseAll() []<-chan Result {
	m.mu.Lock()
	workers := make([]*sinkWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*sinkWorker)
	m.closed = true
	m.mu.Unlock()

	results := make([]<-chan Result, 0, len(workers))
	for _, w := range workers {
		w.stop()
		if m.met != nil {
			m.met.CapturesClosed.Inc()
		}
		results = append(results, w.done)
	}
	return results
}

func (m *Multiplexer) OpenUserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.workers))
	for userID := range m.workers {
		ids = append(ids, userID)
	}
	return ids
}

func (m *Multiplexer) IsOpen(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[userID]
	return ok
}

type sinkWorker struct {
	sessionID string
	userID    string
	sink      Sink
	startedAt time.Time

	feed     chan []byte
	done     chan Result
	stopOnce sync.Once

	statusMu sync.Mutex
	status   Status
}

func newSinkWorker(sessionID, userID string, sink Sink) *sinkWorker {
	return &sinkWorker{
		sessionID: sessionID,
		userID:    userID,
		sink:      sink,
		startedAt: time.Now(),
		feed:      make(chan []byte, feedQueueDepth),
		done:      make(chan Result, 1),
		status:    StatusRecording,
	}
}

func (w *sinkWorker) Status() Status {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

func (w *sinkWorker) setStatus(s Status) {
	w.statusMu.Lock()
	w.status = s
	w.statusMu.Unlock()
}

func (w *sinkWorker) enqueue(chunk []byte) bool {
	defer func() {
		// The feed channel closes when the capture stops; a racing enqueue
		// counts as a drop rather than a crash.
		_ = recover()
	}()
	select {
	case w.feed <- chunk:
		return true
	default:
		return false
	}
}

func (w *sinkWorker) stop() {
	w.stopOnce.Do(func() {
		w.setStatus(StatusStopping)
		close(w.feed)
	})
}

// run is the single writer for this capture. Ranging over the feed channel
// drains every buffered chunk after stop before conversion starts.
func (w *sinkWorker) run() {
	var writeErr error
	for chunk := range w.feed {
		if writeErr != nil {
			continue
		}
		if err := w.sink.Write(chunk); err != nil {
			writeErr = err
			slog.Error("capture sink write failed", "error", err, "session_id", w.sessionID, "user_id", w.userID)
		}
	}

	w.setStatus(StatusConverting)
	result := Result{
		SessionID: w.sessionID,
		UserID:    w.userID,
		StartedAt: w.startedAt,
		EndedAt:   time.Now(),
	}
	asset, err := w.sink.Finalize()
	switch {
	case writeErr != nil && err == nil:
		// Converted asset exists but is missing chunks; still usable.
		result.Status = StatusFinalized
		result.Asset = asset
	case err != nil:
		result.Status = StatusFailed
		result.Err = fmt.Errorf("%w: %w", ErrConversionFailed, err)
		slog.Error("capture conversion failed", "error", err, "session_id", w.sessionID, "user_id", w.userID)
	default:
		result.Status = StatusFinalized
		result.Asset = asset
		slog.Info("capture finalized", "session_id", w.sessionID, "user_id", w.userID, "asset_path", asset.Path, "asset_bytes", asset.Bytes)
	}
	w.setStatus(result.Status)
	w.done <- result
}

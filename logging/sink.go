package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"keystone/metrics"
)

// queueFactor bounds the sink queue at this many batches.
const queueFactor = 40

// SinkConfig configures a BatchSink.
type SinkConfig struct {
	Endpoint      string
	APIKey        string
	Dataset       string
	BatchSize     int
	FlushInterval time.Duration
	Timeout       time.Duration
	Client        *http.Client // defaults to a client with Timeout
	Fallback      io.Writer    // defaults to os.Stderr
}

// BatchSink is a zapcore.WriteSyncer that queues encoded entries and posts
// them as NDJSON batches from a background goroutine. Writes never block:
// when the queue is full the entry is dropped.
type BatchSink struct {
	cfg      SinkConfig
	client   *http.Client
	fallback io.Writer

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}
	once   sync.Once

	fallbackMu sync.Mutex
}

// NewBatchSink starts the drain goroutine. Call Close to stop it.
func NewBatchSink(cfg SinkConfig) *BatchSink {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	s := &BatchSink{
		cfg:      cfg,
		client:   cfg.Client,
		fallback: cfg.Fallback,
		queue:    make(chan []byte, cfg.BatchSize*queueFactor),
		done:     make(chan struct{}),
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: cfg.Timeout}
	}
	if s.fallback == nil {
		s.fallback = os.Stderr
	}

	go s.drain()
	return s
}

// Write enqueues one encoded entry. zap reuses p, so it is copied.
func (s *BatchSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return len(p), nil
	}

	line := make([]byte, len(p))
	copy(line, p)

	select {
	case s.queue <- line:
	default:
		metrics.LogEventsDropped.Inc()
		s.report("Axiom log queue full; dropping log event\n")
	}
	return len(p), nil
}

// Sync is a no-op; delivery is asynchronous. Close drains the queue.
func (s *BatchSink) Sync() error { return nil }

// Close stops accepting entries, flushes what is queued and waits for the
// drain goroutine until ctx is done.
func (s *BatchSink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("log sink did not drain: %w", ctx.Err())
	}
}

func (s *BatchSink) drain() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([][]byte, 0, s.cfg.BatchSize)
	for {
		select {
		case line, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, line)
			if len(batch) >= s.cfg.BatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *BatchSink) flush(batch [][]byte) {
	if len(batch) == 0 {
		return
	}

	var body bytes.Buffer
	for _, line := range batch {
		body.Write(bytes.TrimRight(line, "\n"))
		body.WriteByte('\n')
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, &body)
	if err != nil {
		s.failed(err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("X-Axiom-Dataset", s.cfg.Dataset)

	resp, err := s.client.Do(req)
	if err != nil {
		s.failed(err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.failed(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (s *BatchSink) failed(err error) {
	metrics.LogBatchesFailed.Inc()
	s.report(fmt.Sprintf("Failed to deliver logs to Axiom: %v\n", err))
}

func (s *BatchSink) report(msg string) {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	_, _ = io.WriteString(s.fallback, msg)
}

package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Saver is the write half of a document backend.
type Saver interface {
	Save(ctx context.Context, data []byte) error
}

// Flusher serializes whole-document writes to a Saver. At most one write is
// in flight at a time; snapshots queued while a write is running collapse
// into a single pending slot holding the latest bytes, so a burst of rapid
// mutations produces one trailing write instead of a backlog.
type Flusher struct {
	saver   Saver
	timeout time.Duration

	mu      sync.Mutex
	pending []byte
	busy    bool
	closed  bool
	wg      sync.WaitGroup
}

// NewFlusher wraps saver with coalescing single-flight writes. Each write
// gets its own context bounded by timeout.
func NewFlusher(saver Saver, timeout time.Duration) *Flusher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Flusher{saver: saver, timeout: timeout}
}

// Enqueue schedules data to be written. If a write is already running the
// bytes replace any previously pending snapshot; only the newest document
// version reaches disk.
func (f *Flusher) Enqueue(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		slog.Warn("flusher closed, dropping snapshot", "bytes", len(data))
		return
	}
	if f.busy {
		f.pending = data
		return
	}
	f.busy = true
	f.wg.Add(1)
	go f.run(data)
}

func (f *Flusher) run(data []byte) {
	defer f.wg.Done()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.saver.Save(ctx, data)
		cancel()
		if err != nil {
			slog.Error("state flush failed", "error", err, "bytes", len(data))
		}

		f.mu.Lock()
		if f.pending == nil {
			f.busy = false
			f.mu.Unlock()
			return
		}
		data = f.pending
		f.pending = nil
		f.mu.Unlock()
	}
}

// Flush blocks until every snapshot enqueued so far has been written.
func (f *Flusher) Flush() {
	f.wg.Wait()
}

// Close stops accepting new snapshots and drains the queue.
func (f *Flusher) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
}

// BufferedStore pairs a DocumentStore with a Flusher: loads hit the file
// directly, saves coalesce through the single-flight queue. Save never
// reports an error because the write happens asynchronously; write failures
// are logged by the flusher.
type BufferedStore struct {
	doc *DocumentStore
	fl  *Flusher
}

// NewBufferedStore wraps doc with coalescing writes.
func NewBufferedStore(doc *DocumentStore, writeTimeout time.Duration) *BufferedStore {
	return &BufferedStore{doc: doc, fl: NewFlusher(doc, writeTimeout)}
}

func (b *BufferedStore) Load(ctx context.Context) ([]byte, error) {
	return b.doc.Load(ctx)
}

func (b *BufferedStore) Save(_ context.Context, data []byte) error {
	b.fl.Enqueue(data)
	return nil
}

// Flush blocks until every queued snapshot is on disk.
func (b *BufferedStore) Flush() {
	b.fl.Flush()
}

// Close drains pending writes and stops the queue.
func (b *BufferedStore) Close() {
	b.fl.Close()
}

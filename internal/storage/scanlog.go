package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ScanRecord is one JSONL line of scan history.
type ScanRecord struct {
	RunID      string    `json:"runId"`
	StartURL   string    `json:"startUrl"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Pages      int       `json:"pages"`
	Found      int       `json:"found"`
	Added      int       `json:"added"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ScanLog appends scan run records to a size-rotated JSONL file. Writes are
// queued to a background goroutine so the scan loop never blocks on disk.
type ScanLog struct {
	writeCh chan ScanRecord
	done    chan struct{}
	wg      sync.WaitGroup
	out     *lumberjack.Logger
}

// NewScanLog creates a scan history log under dir. maxSizeMB bounds the
// file before rotation kicks in.
func NewScanLog(dir string, maxSizeMB int) *ScanLog {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	l := &ScanLog{
		writeCh: make(chan ScanRecord, 64),
		done:    make(chan struct{}),
		out: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "scans.jsonl"),
			MaxSize:    maxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		},
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l
}

// NewRunID returns a fresh identifier for a scan run.
func NewRunID() string {
	return uuid.NewString()
}

// Append queues a record. When the buffer is full the record is dropped
// with a warning; scan history is best effort.
func (l *ScanLog) Append(rec ScanRecord) error {
	select {
	case l.writeCh <- rec:
		return nil
	case <-l.done:
		return fmt.Errorf("scan log is closed")
	default:
		slog.Warn("scan log buffer full, dropping record", "runId", rec.RunID)
		return fmt.Errorf("buffer full")
	}
}

// Close flushes queued records and releases the file.
func (l *ScanLog) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.out.Close()
}

func (l *ScanLog) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case rec := <-l.writeCh:
			l.write(rec)
		case <-l.done:
			for {
				select {
				case rec := <-l.writeCh:
					l.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *ScanLog) write(rec ScanRecord) {
	line, err := json.Marshal(rec)
	if err != nil {
		slog.Error("scan log marshal failed", "error", err, "runId", rec.RunID)
		return
	}
	if _, err := l.out.Write(append(line, '\n')); err != nil {
		slog.Error("scan log write failed", "error", err, "runId", rec.RunID)
	}
}

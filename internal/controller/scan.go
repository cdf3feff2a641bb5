package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/notify"
	"github.com/dgnsrekt/screener_agent/internal/storage"
)

// ErrScanInProgress is returned when a scan is requested while one is
// already running. Only one scan session exists at a time.
var ErrScanInProgress = errors.New("a scan is already in progress")

// ScanStatus describes the current or most recent scan session.
type ScanStatus struct {
	Running     bool      `json:"running"`
	RunID       string    `json:"runId,omitempty"`
	StartURL    string    `json:"startUrl,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	LastMessage string    `json:"lastMessage,omitempty"`
	Pages       int       `json:"pages"`
	Found       int       `json:"found"`
	Added       int       `json:"added"`
	Cancelled   bool      `json:"cancelled,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type scanState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	status ScanStatus
	done   chan struct{}
}

// StartScan launches a scan of the screener results at startURL in the
// background and returns immediately. The collected symbols land in the
// active watchlist as one batch when the scan finishes.
func (s *Service) StartScan(ctx context.Context, startURL string) (ScanStatus, error) {
	if err := s.requireNonEmpty(startURL, "url"); err != nil {
		return ScanStatus{}, err
	}

	s.scan.mu.Lock()
	defer s.scan.mu.Unlock()
	if s.scan.status.Running {
		return ScanStatus{}, ErrScanInProgress
	}

	runID := storage.NewRunID()
	scanCtx, cancel := context.WithCancel(context.Background())
	s.scan.cancel = cancel
	s.scan.done = make(chan struct{})
	s.scan.status = ScanStatus{
		Running:   true,
		RunID:     runID,
		StartURL:  startURL,
		StartedAt: time.Now(),
	}

	go s.runScan(scanCtx, runID, startURL, s.scan.done)
	return s.scan.status, nil
}

// CancelScan stops the running scan, if any. Symbols already collected are
// still added. Reports whether a scan was running.
func (s *Service) CancelScan(ctx context.Context) (bool, error) {
	s.scan.mu.Lock()
	defer s.scan.mu.Unlock()
	if !s.scan.status.Running || s.scan.cancel == nil {
		return false, nil
	}
	s.scan.cancel()
	return true, nil
}

// GetScanStatus reports the running scan or the outcome of the last one.
func (s *Service) GetScanStatus(ctx context.Context) (ScanStatus, error) {
	s.scan.mu.Lock()
	defer s.scan.mu.Unlock()
	return s.scan.status, nil
}

func (s *Service) runScan(ctx context.Context, runID, startURL string, done chan struct{}) {
	defer close(done)
	started := time.Now()

	progress := func(msg string) {
		s.scan.mu.Lock()
		s.scan.status.LastMessage = msg
		s.scan.mu.Unlock()
		s.broker.Publish(events.JSONEvent(events.TypeScanProgress, map[string]string{
			"runId":   runID,
			"message": msg,
		}))
	}

	res := s.scanner.Scan(ctx, startURL, progress)

	// The scan context may already be cancelled; the batch add and the
	// log append must still land.
	addCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	added := s.store.AddSymbols(addCtx, res.Symbols)
	cancel()

	// A user-initiated cancel is a normal outcome, not a failure.
	cancelled := errors.Is(res.Err, context.Canceled)

	rec := storage.ScanRecord{
		RunID:      runID,
		StartURL:   startURL,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Pages:      res.Pages,
		Found:      len(res.Symbols),
		Added:      added,
		Cancelled:  cancelled,
	}
	if res.Err != nil && !cancelled {
		rec.Error = res.Err.Error()
	}
	if s.scanLog != nil {
		if err := s.scanLog.Append(rec); err != nil {
			slog.Warn("scan log append failed", "run_id", runID, "error", err)
		}
	}

	s.scan.mu.Lock()
	s.scan.status.Running = false
	s.scan.status.Pages = res.Pages
	s.scan.status.Found = len(res.Symbols)
	s.scan.status.Added = added
	s.scan.status.Cancelled = cancelled
	s.scan.status.Error = rec.Error
	if s.scan.cancel != nil {
		s.scan.cancel()
		s.scan.cancel = nil
	}
	s.scan.mu.Unlock()

	slog.Info("scan finished", "run_id", runID, "pages", res.Pages, "found", len(res.Symbols), "added", added, "cancelled", cancelled, "error", rec.Error)
	s.broker.Publish(events.JSONEvent(events.TypeScanFinished, rec))
	if added > 0 {
		s.broker.Publish(events.JSONEvent(events.TypeSymbolAdded, map[string]int{"added": added}))
	}

	if s.ntfyEndpoint != "" {
		nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
		msg := notify.ScanFinishedMessage(startURL, res.Pages, len(res.Symbols), added, rec.Error)
		if err := notify.Send(nctx, nil, s.ntfyEndpoint, msg); err != nil {
			slog.Warn("scan notification failed", "run_id", runID, "error", err)
		}
		ncancel()
	}
}

// waitScan blocks until the current scan finishes. Test helper surface.
func (s *Service) waitScan() {
	s.scan.mu.Lock()
	done := s.scan.done
	s.scan.mu.Unlock()
	if done != nil {
		<-done
	}
}

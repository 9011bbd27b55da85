package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newsinsight/docservice/internal/document"
	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/newsinsight/docservice/pkg/metrics"
)

// TimeoutReason is stored as the result of documents failed by the sweep.
const TimeoutReason = "analysis timed out"

// SweepStale fails every processing document whose last write is older than
// ttl. Each record is guarded by its revision, so a result that lands while
// the sweep runs is kept. It returns the number of documents failed.
func (s *DocumentService) SweepStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	stale, err := s.repo.FindStale(ctx, document.StatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range stale {
		rev := d.Revision
		_, err := s.UpdateResult(ctx, d.ID, map[string]any{"error": TimeoutReason}, document.StatusFailed, &rev)
		switch {
		case err == nil:
			n++
			metrics.DocumentsSwept.Inc()
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			logger.Debugf("sweep: document %d changed underneath, skipping", d.ID)
		case errors.Is(err, ErrConfiguration):
			// the write succeeded, only the projection failed
			n++
			metrics.DocumentsSwept.Inc()
		default:
			return n, err
		}
	}
	return n, nil
}

// Sweeper runs SweepStale on a fixed interval until stopped.
type Sweeper struct {
	svc      *DocumentService
	interval time.Duration
	ttl      time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewSweeper(svc *DocumentService, interval, ttl time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, ttl: ttl}
}

// Start launches the background loop. A non-positive interval disables it.
func (w *Sweeper) Start(ctx context.Context) {
	if w.interval <= 0 || w.ttl <= 0 || w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := w.svc.SweepStale(ctx, w.ttl)
				if err != nil {
					logger.Errorf("sweep stale documents: %v", err)
					continue
				}
				if n > 0 {
					logger.Infof("sweep: marked %d stale documents as failed", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.cancel = nil
}

package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/newsinsight/docservice/pkg/logger"
	"github.com/newsinsight/docservice/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrDocumentGone is returned by Report when the API no longer knows the document.
var ErrDocumentGone = errors.New("document no longer exists")

// Analyzer produces a structured result for a publicly reachable document.
type Analyzer interface {
	Analyze(ctx context.Context, fileURL string) (map[string]any, error)
}

// Reporter writes an outcome back onto the document record.
type Reporter interface {
	Report(ctx context.Context, docID int64, result map[string]any, status string) error
}

// JobSource yields pending jobs; (nil, nil) means nothing arrived in time.
type JobSource interface {
	Dequeue(ctx context.Context, wait time.Duration) (*Job, error)
}

// Worker drains the analysis queue with a fixed number of concurrent loops.
// Every job ends in exactly one callback: completed with the analyzer's
// payload or failed with the analyzer error. Jobs are not retried here; a
// lost callback is picked up by the API's stale sweep.
type Worker struct {
	src      JobSource
	analyzer Analyzer
	reporter Reporter
	workers  int
	wait     time.Duration
	backoff  time.Duration
}

func NewWorker(src JobSource, analyzer Analyzer, reporter Reporter, workers int) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{src: src, analyzer: analyzer, reporter: reporter, workers: workers, wait: 5 * time.Second, backoff: 3 * time.Second}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Infof("starting %d analysis workers", w.workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		id := i
		g.Go(func() error {
			w.loop(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.src.Dequeue(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("[worker-%d] dequeue failed: %v", id, err)
			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := w.Process(ctx, *job); err != nil {
			logger.Errorf("[worker-%d] document %d: %v", id, job.DocumentID, err)
		}
	}
}

// Process runs one job end to end.
func (w *Worker) Process(ctx context.Context, job Job) error {
	result, aerr := w.analyzer.Analyze(ctx, job.FileURL)
	status := "completed"
	outcome := "completed"
	if aerr != nil {
		logger.Warnf("analyzer failed for document %d: %v", job.DocumentID, aerr)
		result = map[string]any{"error": aerr.Error()}
		status = "failed"
		outcome = "analyzer_failed"
	}
	if err := w.reporter.Report(ctx, job.DocumentID, result, status); err != nil {
		if errors.Is(err, ErrDocumentGone) {
			metrics.AnalysisJobs.WithLabelValues("document_gone").Inc()
		} else {
			metrics.AnalysisJobs.WithLabelValues("callback_failed").Inc()
		}
		return err
	}
	metrics.AnalysisJobs.WithLabelValues(outcome).Inc()
	logger.Infof("document %d analysis reported as %s", job.DocumentID, status)
	return nil
}

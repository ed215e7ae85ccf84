// Package worker provides background processing for track analysis jobs.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"go.uber.org/zap"
)

// Job represents one track to (re)analyze.
type Job struct {
	TrackID  string
	Filename string
}

// Analyzer is the work each job performs.
type Analyzer interface {
	AnalyzeTrack(ctx context.Context, trackID, filename string) (domain.AudioAnalysis, error)
}

// Stats summarizes the jobs a pool has handled.
type Stats struct {
	Succeeded int64
	Failed    int64
	Dropped   int64
}

// Pool manages background workers for analysis jobs.
type Pool struct {
	analyzer Analyzer
	log      *zap.Logger
	timeout  time.Duration
	jobs     chan Job
	wg       sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a worker pool with the given queue size. jobTimeout bounds
// each job; zero means no bound.
func NewPool(analyzer Analyzer, log *zap.Logger, queueSize int, jobTimeout time.Duration) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		analyzer: analyzer,
		log:      log,
		timeout:  jobTimeout,
		jobs:     make(chan Job, queueSize),
	}
}

// Start launches the worker goroutines. Jobs run under ctx.
func (p *Pool) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.processJob(ctx, job)
			}
		}()
	}
}

// Stop waits for workers to finish after closing the queue.
func (p *Pool) Stop() Stats {
	close(p.jobs)
	p.wg.Wait()
	return Stats{
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// SubmitWait queues a job, blocking while the queue is full.
func (p *Pool) SubmitWait(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		p.dropped.Add(1)
		return ctx.Err()
	}
}

func (p *Pool) processJob(ctx context.Context, job Job) {
	if err := ctx.Err(); err != nil {
		p.failed.Add(1)
		return
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	analysis, err := p.analyzer.AnalyzeTrack(ctx, job.TrackID, job.Filename)
	if err != nil {
		p.failed.Add(1)
		p.log.Warn("worker: analysis failed", zap.String("track_id", job.TrackID), zap.Error(err))
		return
	}
	p.succeeded.Add(1)
	p.log.Info("worker: track analyzed",
		zap.String("track_id", job.TrackID),
		zap.String("analysis_id", analysis.ID),
		zap.Duration("elapsed", time.Since(start)),
	)
}

package generation

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"radboard/internal/domain"
	"radboard/internal/infra"
)

// Poller is the single background loop observing provider completion out of
// band. Each sweep enumerates poll-eligible jobs and drives them through
// Orchestrator.Poll with bounded concurrency; one job's failure never aborts
// the sweep for the others.
type Poller struct {
	orch     *Orchestrator
	store    domain.JobStore
	logger   infra.Logger
	interval time.Duration
	workers  int
	now      func() time.Time
}

// NewPoller constructs the polling driver. workers bounds concurrent
// provider calls per sweep.
func NewPoller(orch *Orchestrator, store domain.JobStore, logger infra.Logger, interval time.Duration, workers int) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	return &Poller{
		orch:     orch,
		store:    store,
		logger:   logger,
		interval: interval,
		workers:  workers,
		now:      time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Int("workers", p.workers).Msg("poller: started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller: stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep polls every eligible job once. Exported so tests and the readiness
// path can drive the loop deterministically.
func (p *Poller) Sweep(ctx context.Context) {
	jobs, err := p.store.ListPollable(ctx, p.now())
	if err != nil {
		p.logger.Error().Err(err).Msg("poller: list pollable jobs failed")
		return
	}
	if len(jobs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, job := range jobs {
		jobID := job.ID
		g.Go(func() error {
			if err := p.orch.Poll(gctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
				// Failures are isolated per job; log and keep sweeping.
				p.logger.Error().Err(err).Str("job_id", jobID).Msg("poller: poll failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"radboard/internal/domain"
	"radboard/internal/eventbus"
	"radboard/internal/infra"
	"radboard/internal/providers"
)

// Options tunes the orchestrator's retry policy and provider call budget.
type Options struct {
	// PollInterval is the baseline delay between polls of a healthy job.
	PollInterval time.Duration
	// MaxAttempts caps consecutive transient failures per job before the job
	// is force-failed with a timeout error.
	MaxAttempts int
	// BackoffBase seeds the exponential backoff applied after each
	// consecutive transient failure.
	BackoffBase time.Duration
	// CallTimeout bounds any single provider call.
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
	return o
}

// maxBackoff caps the per-job poll delay regardless of attempt count.
const maxBackoff = 5 * time.Minute

// Orchestrator owns the generation job lifecycle: it accepts new requests,
// drives them through the configured providers, persists every transition,
// and publishes a job_updated event per transition. All transitions for a
// given job are serialized through a per-job lock; cancellation is a
// terminal override, so a poll result racing a cancel is discarded rather
// than applied.
type Orchestrator struct {
	store   domain.JobStore
	clients map[domain.JobKind]providers.Client
	bus     *eventbus.Bus
	logger  infra.Logger
	opts    Options
	now     func() time.Time

	// ctx bounds background work (async submit, best-effort cancels) so it
	// stops with the process rather than with the triggering request.
	ctx context.Context
	wg  sync.WaitGroup

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewOrchestrator wires the orchestrator. ctx should live for the process.
func NewOrchestrator(ctx context.Context, store domain.JobStore, clients map[domain.JobKind]providers.Client, bus *eventbus.Bus, logger infra.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		clients: clients,
		bus:     bus,
		logger:  logger,
		opts:    opts.withDefaults(),
		now:     time.Now,
		ctx:     ctx,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Submit creates a job for the post and starts the provider submission in
// the background. It returns domain.ErrConflict while another non-terminal
// job exists for the same post, and never surfaces provider failures
// synchronously; those arrive as job_updated events.
func (o *Orchestrator) Submit(ctx context.Context, postID string, kind domain.JobKind, params domain.GenerationParams) (*domain.GenerationJob, error) {
	client, ok := o.clients[kind]
	if !ok {
		return nil, fmt.Errorf("no provider configured for kind %q", kind)
	}
	now := o.now()
	job := &domain.GenerationJob{
		ID:         uuid.NewString(),
		PostID:     postID,
		Kind:       kind,
		Status:     domain.JobStatusPending,
		Params:     params,
		NextPollAt: now.Add(o.opts.PollInterval),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, err
	}
	o.publish(job)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.submitToProvider(job.ID, client, params)
	}()

	snapshot := *job
	return &snapshot, nil
}

// submitToProvider runs off the request path: a slow provider delays the
// submitted transition, never the caller.
func (o *Orchestrator) submitToProvider(jobID string, client providers.Client, params domain.GenerationParams) {
	callCtx, cancel := context.WithTimeout(o.ctx, o.opts.CallTimeout)
	providerRef, err := client.Create(callCtx, params)
	cancel()

	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("generation: provider rejected submission")
		o.fail(jobID, err.Error())
		return
	}
	applied := o.transition(jobID, domain.JobStatusSubmitted, func(j *domain.GenerationJob) {
		j.ProviderRef = providerRef
		j.NextPollAt = o.now().Add(o.opts.PollInterval)
	})
	if applied {
		return
	}

	// A cancel landed while Create was in flight: the remote generation
	// exists but no local record will ever reference it. Release it upstream
	// so it does not run to completion on billed quota.
	job, loadErr := o.store.GetByID(o.ctx, jobID)
	if loadErr != nil || job.Status != domain.JobStatusCancelled {
		return
	}
	callCtx, cancel = context.WithTimeout(o.ctx, o.opts.CallTimeout)
	defer cancel()
	if err := client.Cancel(callCtx, providerRef); err != nil {
		o.logger.Debug().Err(err).Str("job_id", jobID).Msg("generation: provider cancel failed")
	}
}

// Poll is invoked by the polling driver for jobs in submitted/in_progress.
// Transient provider errors leave the status untouched and back the job off
// exponentially; at the attempt ceiling the job is force-failed.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) error {
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusSubmitted && job.Status != domain.JobStatusInProgress {
		return nil
	}
	client, ok := o.clients[job.Kind]
	if !ok {
		o.fail(jobID, fmt.Sprintf("no provider configured for kind %q", job.Kind))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	status, err := client.StatusOf(callCtx, job.ProviderRef)
	cancel()

	if err != nil {
		if providers.IsTransient(err) {
			o.backoff(jobID, err)
			return nil
		}
		o.transition(jobID, domain.JobStatusFailed, func(j *domain.GenerationJob) {
			j.ErrorDetail = err.Error()
			j.Attempt++
		})
		return nil
	}

	switch status.Kind {
	case providers.StatusSucceeded:
		o.transition(jobID, domain.JobStatusSucceeded, func(j *domain.GenerationJob) {
			j.ResultRef = status.ResultRef
			j.Attempt++
		})
	case providers.StatusFailed:
		o.transition(jobID, domain.JobStatusFailed, func(j *domain.GenerationJob) {
			j.ErrorDetail = status.Reason
			j.Attempt++
		})
	default:
		o.touchInProgress(jobID)
	}
	return nil
}

// Cancel moves the job to cancelled and fires a best-effort provider cancel.
// The local transition never waits on the provider.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrTerminal
	}
	applied := o.transition(jobID, domain.JobStatusCancelled, nil)
	if !applied {
		return domain.ErrTerminal
	}
	if job.ProviderRef != "" {
		client, ok := o.clients[job.Kind]
		if ok {
			ref := job.ProviderRef
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				callCtx, cancel := context.WithTimeout(o.ctx, o.opts.CallTimeout)
				defer cancel()
				if err := client.Cancel(callCtx, ref); err != nil {
					o.logger.Debug().Err(err).Str("job_id", jobID).Msg("generation: provider cancel failed")
				}
			}()
		}
	}
	return nil
}

// CancelForPost cancels the post's active job, if any.
func (o *Orchestrator) CancelForPost(ctx context.Context, postID string) error {
	job, err := o.store.GetActiveByPost(ctx, postID)
	if err != nil {
		return err
	}
	return o.Cancel(ctx, job.ID)
}

// GetJob returns a snapshot of the job.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snapshot := *job
	return &snapshot, nil
}

// Wait blocks until in-flight background submissions and cancels finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// transition applies a status change under the job's lock. It re-reads the
// job so a transition raced by Cancel observes the terminal state and is
// discarded. Returns whether the transition was applied.
func (o *Orchestrator) transition(jobID string, next domain.JobStatus, mutate func(*domain.GenerationJob)) bool {
	lock := o.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	ctx := o.ctx
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("generation: load for transition failed")
		return false
	}
	if !job.Status.CanTransition(next) {
		o.logger.Debug().
			Str("job_id", jobID).
			Str("from", string(job.Status)).
			Str("to", string(next)).
			Msg("generation: transition discarded")
		return false
	}
	published := job.Status != next
	job.Status = next
	if mutate != nil {
		mutate(job)
	}
	job.UpdatedAt = o.now()
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("generation: persist transition failed")
		return false
	}
	if next.Terminal() {
		o.releaseLock(jobID)
	}
	if published {
		o.publish(job)
	}
	return true
}

func (o *Orchestrator) fail(jobID, detail string) {
	o.transition(jobID, domain.JobStatusFailed, func(j *domain.GenerationJob) {
		j.ErrorDetail = detail
	})
}

// touchInProgress moves a submitted job to in_progress (publishing once) or
// refreshes an already in_progress job without publishing. Either way the
// attempt counter resets and the next poll returns to the baseline interval.
func (o *Orchestrator) touchInProgress(jobID string) {
	o.transition(jobID, domain.JobStatusInProgress, func(j *domain.GenerationJob) {
		j.Attempt = 0
		j.NextPollAt = o.now().Add(o.opts.PollInterval)
	})
}

// backoff records a transient failure: attempt increments, the next poll is
// pushed out exponentially, and the attempt ceiling converts the job to a
// terminal failure.
func (o *Orchestrator) backoff(jobID string, cause error) {
	lock := o.lockFor(jobID)
	lock.Lock()

	ctx := o.ctx
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		lock.Unlock()
		return
	}
	if job.Status.Terminal() {
		lock.Unlock()
		return
	}
	job.Attempt++
	if job.Attempt >= o.opts.MaxAttempts {
		attempts := job.Attempt
		lock.Unlock()
		o.transition(jobID, domain.JobStatusFailed, func(j *domain.GenerationJob) {
			j.Attempt = attempts
			j.ErrorDetail = fmt.Sprintf("provider polling exceeded %d attempts: %s", attempts, cause)
		})
		return
	}
	job.NextPollAt = o.now().Add(backoffDelay(o.opts.BackoffBase, job.Attempt))
	job.UpdatedAt = o.now()
	if err := o.store.Update(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("generation: persist backoff failed")
	}
	o.logger.Debug().
		Str("job_id", jobID).
		Int("attempt", job.Attempt).
		Time("next_poll_at", job.NextPollAt).
		Err(cause).
		Msg("generation: transient provider error, backing off")
	lock.Unlock()
}

// backoffDelay doubles per consecutive transient failure: base, 2*base,
// 4*base, ... capped at maxBackoff.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func (o *Orchestrator) publish(job *domain.GenerationJob) {
	o.bus.Publish(domain.Event{
		Topic:   domain.TopicJobUpdated,
		Scope:   domain.PostScope(job.PostID),
		Payload: job.Snapshot(),
	})
}

func (o *Orchestrator) lockFor(jobID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	lock, ok := o.locks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[jobID] = lock
	}
	return lock
}

// releaseLock drops the per-job lock entry once the job is terminal; no
// further transitions are legal, so the entry only leaks otherwise.
func (o *Orchestrator) releaseLock(jobID string) {
	o.locksMu.Lock()
	delete(o.locks, jobID)
	o.locksMu.Unlock()
}

// IsNotFound reports whether err maps to an unknown job or post.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

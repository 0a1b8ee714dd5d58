package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
)

// Catalog is the read side of the collection registry.
type Catalog interface {
	Get(name string) (collection.Config, error)
	List() []collection.Entry
}

// Runner executes one job. It reports progress through the Store it was
// built with and returns nil on success; the Orchestrator owns the terminal
// transition.
type Runner interface {
	Run(ctx context.Context, j Job) error
}

// Request is a scrape submission.
type Request struct {
	Collection string
	Limit      int  // max postings to collect
	MaxPages   int  // optional cap on listing pages; 0 = derived from Limit
	Details    bool // fetch each posting's page and run the match analysis
	OwnerID    string
}

// Options tunes an Orchestrator.
type Options struct {
	MaxLimit      int // upper bound for Request.Limit
	MaxConcurrent int // running jobs at once; 0 = unbounded
}

// Orchestrator validates submissions, registers jobs, and runs each one on
// its own goroutine. Callers learn about progress only through the Store.
type Orchestrator struct {
	store   *Store
	catalog Catalog
	runner  Runner

	maxLimit int
	sem      *semaphore.Weighted
	newID    func() string

	baseCtx context.Context
	stopAll context.CancelFunc

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator wires an Orchestrator. Job lifetimes are tied to the
// Orchestrator, never to the context of the request that submitted them.
func NewOrchestrator(store *Store, catalog Catalog, runner Runner, opts Options) *Orchestrator {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:    store,
		catalog:  catalog,
		runner:   runner,
		maxLimit: opts.MaxLimit,
		newID:    uuid.NewString,
		baseCtx:  ctx,
		stopAll:  cancel,
		cancels:  make(map[string]context.CancelFunc),
	}
	if opts.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return o
}

// Submit validates req, registers a pending job, and starts it in the
// background. It returns as soon as the job is registered.
//
// Validation failures are *Error values of kind KindUnauthenticated,
// KindUnknownCollection, or KindInvalidLimit; no job exists afterwards.
func (o *Orchestrator) Submit(_ context.Context, req Request) (string, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return "", Errorf(KindUnauthenticated, "owner id is required")
	}

	cfg, err := o.catalog.Get(req.Collection)
	if err != nil {
		return "", &Error{Kind: KindUnknownCollection, Msg: fmt.Sprintf("unknown collection %q", req.Collection), Err: err}
	}

	if req.Limit < 1 || req.Limit > o.maxLimit {
		return "", Errorf(KindInvalidLimit, "limit must be between 1 and %d, got %d", o.maxLimit, req.Limit)
	}
	if req.MaxPages < 0 {
		return "", Errorf(KindInvalidLimit, "pages must not be negative, got %d", req.MaxPages)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	job, err := o.store.Create(Job{
		ID:         o.newID(),
		Collection: cfg.Name,
		OwnerID:    owner,
		Limit:      req.Limit,
		MaxPages:   req.MaxPages,
		Details:    req.Details,
		Message:    "queued",
	})
	if err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("register job: %w", err)
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancels[job.ID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	log.Printf("[orchestrator] Job %s submitted: collection=%s limit=%d details=%t owner=%s",
		job.ID, job.Collection, job.Limit, job.Details, job.OwnerID)

	go o.dispatch(ctx, job)
	return job.ID, nil
}

// Status returns the latest snapshot of a job.
func (o *Orchestrator) Status(id string) (Job, error) {
	return o.store.Get(id)
}

// Jobs lists the jobs of one owner, newest first.
func (o *Orchestrator) Jobs(ownerID string) []Job {
	return o.store.List(ownerID)
}

// Collections lists the collections that can be submitted.
func (o *Orchestrator) Collections() []collection.Entry {
	return o.catalog.List()
}

// Cancel asks a pending or running job to stop. The worker notices at its
// next checkpoint and the job fails with KindCancelled.
func (o *Orchestrator) Cancel(id string) error {
	j, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if j.Done() {
		return ErrTerminal
	}

	o.mu.Lock()
	cancel, ok := o.cancels[id]
	if ok {
		cancel()
	}
	o.mu.Unlock()
	if !ok {
		// The worker already returned; the terminal write is imminent.
		return ErrTerminal
	}
	log.Printf("[orchestrator] Job %s cancellation requested", id)
	return nil
}

// Shutdown stops accepting jobs, cancels every outstanding one, and waits
// for their workers until ctx expires.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stopAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, job Job) {
	defer o.wg.Done()
	defer o.forget(job.ID)

	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.fail(job.ID, KindCancelled, "Scrape cancelled before it started")
			return
		}
		defer o.sem.Release(1)
	}
	if ctx.Err() != nil {
		o.fail(job.ID, KindCancelled, "Scrape cancelled before it started")
		return
	}

	if _, err := o.store.Start(job.ID); err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("start job failed")
		return
	}

	err := o.run(ctx, job)
	if cancelled := o.unregister(ctx, job.ID); err == nil && cancelled {
		err = context.Canceled
	}
	if err != nil {
		kind := KindOf(err)
		if errors.Is(err, context.Canceled) {
			kind = KindCancelled
		}
		log.Printf("[orchestrator] Job %s failed (%s): %v", job.ID, kind, err)
		o.fail(job.ID, kind, publicMessage(err))
		return
	}

	done, err := o.store.Get(job.ID)
	if err != nil {
		return
	}
	msg := fmt.Sprintf("Completed: %d postings saved", done.JobsCollected)
	if _, err := o.store.Complete(job.ID, msg); err != nil {
		log.Warn().Err(err).Str("jobId", job.ID).Msg("complete job failed")
		return
	}
	log.Printf("[orchestrator] Job %s completed, collected=%d", job.ID, done.JobsCollected)
}

// run shields the orchestrator from a panicking runner.
func (o *Orchestrator) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindInternal, Msg: "Scrape failed unexpectedly", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return o.runner.Run(ctx, job)
}

func (o *Orchestrator) fail(id string, kind ErrorKind, msg string) {
	if _, err := o.store.Fail(id, kind, msg); err != nil && !errors.Is(err, ErrTerminal) {
		log.Warn().Err(err).Str("jobId", id).Msg("fail job failed")
	}
}

// unregister removes a finished job from the cancel table and reports
// whether it was cancelled first. Cancel calls after this see ErrTerminal.
func (o *Orchestrator) unregister(ctx context.Context, id string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	delete(o.cancels, id)
	cancelled := ctx.Err() != nil
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return cancelled
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	delete(o.cancels, id)
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

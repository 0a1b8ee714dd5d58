package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

// Publisher receives committed job snapshots. Delivery happens on the
// Store's own goroutine, oldest job first; when a job changes faster than
// the publisher keeps up, only its latest version is sent. Failures are
// logged and never affect the job.
type Publisher interface {
	Publish(ctx context.Context, j Job) error
}

// Store is the registry of jobs shared between request handlers (readers)
// and workers (writers).
//
// Each job lives in its own record holding an immutable snapshot behind an
// atomic pointer. Writers to one job are serialised by the record's mutex
// and commit by swapping in a new snapshot; readers load the pointer and
// never see a half-applied write. Different jobs never contend.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record

	pub    Publisher
	outbox *outbox
	now    func() time.Time
}

type record struct {
	mu   sync.Mutex
	snap atomic.Pointer[Job]
}

// NewStore returns an empty Store. pub may be nil; otherwise the Store runs
// a delivery goroutine until Close.
func NewStore(pub Publisher) *Store {
	s := &Store{
		records: make(map[string]*record),
		pub:     pub,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if pub != nil {
		s.outbox = newOutbox()
		go s.deliver()
	}
	return s
}

// Close delivers snapshots still queued and stops the delivery goroutine.
// Snapshots committed afterwards are not published.
func (s *Store) Close(ctx context.Context) error {
	if s.outbox == nil {
		return nil
	}
	s.outbox.close()
	select {
	case <-s.outbox.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flushing job snapshots: %w", ctx.Err())
	}
}

// Create registers j in StatusPending at version 1.
func (s *Store) Create(j Job) (Job, error) {
	if j.ID == "" {
		return Job{}, errors.New("job id is required")
	}
	now := s.now()
	j.Status = StatusPending
	j.Progress = 0
	j.JobsCollected = 0
	j.Error = ""
	j.Version = 1
	j.CreatedAt = now
	j.UpdatedAt = now

	rec := &record{}
	rec.snap.Store(&j)

	s.mu.Lock()
	if _, exists := s.records[j.ID]; exists {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("job %s already exists", j.ID)
	}
	s.records[j.ID] = rec
	s.mu.Unlock()

	s.publish(j)
	return j, nil
}

// Get returns the latest snapshot of a job.
func (s *Store) Get(id string) (Job, error) {
	rec := s.lookup(id)
	if rec == nil {
		return Job{}, ErrNotFound
	}
	return *rec.snap.Load(), nil
}

// List returns snapshots of every job owned by ownerID, newest first. An
// empty ownerID lists all jobs.
func (s *Store) List(ownerID string) []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.records))
	for _, rec := range s.records {
		j := *rec.snap.Load()
		if ownerID == "" || j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// Update applies fn to a copy of the job's current snapshot and commits it
// as the next version. fn returning an error aborts the write.
//
// Whatever fn does, the committed snapshot keeps the job's identity fields,
// never lowers Progress or JobsCollected, clamps Progress to 0..100, and only
// changes Status along an allowed transition. Terminal jobs are never
// written: Update returns ErrTerminal.
func (s *Store) Update(id string, fn func(*Job) error) (Job, error) {
	rec := s.lookup(id)
	if rec == nil {
		return Job{}, ErrNotFound
	}

	rec.mu.Lock()
	cur := rec.snap.Load()
	if IsTerminal(cur.Status) {
		rec.mu.Unlock()
		return *cur, ErrTerminal
	}

	next := *cur
	if err := fn(&next); err != nil {
		rec.mu.Unlock()
		return *cur, err
	}
	if next.Status != cur.Status && !IsTransitionAllowed(cur.Status, next.Status) {
		rec.mu.Unlock()
		return *cur, fmt.Errorf("transition %s → %s is not allowed", cur.Status, next.Status)
	}

	next.ID = cur.ID
	next.Collection = cur.Collection
	next.OwnerID = cur.OwnerID
	next.Limit = cur.Limit
	next.MaxPages = cur.MaxPages
	next.Details = cur.Details
	next.CreatedAt = cur.CreatedAt

	next.Progress = clamp(next.Progress, cur.Progress, 100)
	if next.JobsCollected < cur.JobsCollected {
		next.JobsCollected = cur.JobsCollected
	}
	if next.Status != StatusFailed {
		next.Error = ""
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()

	rec.snap.Store(&next)
	// Queued under the record lock so versions reach the outbox in order.
	s.publish(next)
	rec.mu.Unlock()
	return next, nil
}

// Start moves a pending job to running with progress 0.
func (s *Store) Start(id string) (Job, error) {
	return s.Update(id, func(j *Job) error {
		j.Status = StatusRunning
		j.Progress = 0
		j.Message = "starting"
		return nil
	})
}

// Report records progress on a running job.
func (s *Store) Report(id string, progress, collected int, message string) (Job, error) {
	return s.Update(id, func(j *Job) error {
		if j.Status != StatusRunning {
			return fmt.Errorf("cannot report progress on %s job", j.Status)
		}
		j.Progress = progress
		j.JobsCollected = collected
		j.Message = message
		return nil
	})
}

// Complete marks a running job completed at progress 100.
func (s *Store) Complete(id, message string) (Job, error) {
	return s.Update(id, func(j *Job) error {
		j.Status = StatusCompleted
		j.Progress = 100
		j.Message = message
		return nil
	})
}

// Fail marks a job failed with the given stable kind and message.
func (s *Store) Fail(id string, kind ErrorKind, message string) (Job, error) {
	return s.Update(id, func(j *Job) error {
		j.Status = StatusFailed
		j.Error = kind
		j.Message = message
		return nil
	})
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

// publish queues j for delivery. It never blocks on the Publisher.
func (s *Store) publish(j Job) {
	if s.outbox == nil {
		return
	}
	s.outbox.put(j)
}

func (s *Store) deliver() {
	defer close(s.outbox.drained)
	for {
		j, ok := s.outbox.next()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.pub.Publish(ctx, j); err != nil {
			log.Warn().Err(err).Str("jobId", j.ID).Uint64("version", j.Version).Msg("publish job snapshot failed")
		}
		cancel()
	}
}

// ─── Outbox ──────────────────────────────────────────────────────────────────

// outbox holds at most one undelivered snapshot per job, the newest.
type outbox struct {
	mu      sync.Mutex
	latest  map[string]Job
	queue   []string
	closed  bool
	wake    chan struct{}
	drained chan struct{}
}

func newOutbox() *outbox {
	return &outbox{
		latest:  make(map[string]Job),
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
}

func (o *outbox) put(j Job) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if prev, queued := o.latest[j.ID]; !queued {
		o.queue = append(o.queue, j.ID)
		o.latest[j.ID] = j
	} else if j.Version > prev.Version {
		o.latest[j.ID] = j
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// next blocks until a snapshot is queued. It returns false once the outbox
// is closed and empty.
func (o *outbox) next() (Job, bool) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			id := o.queue[0]
			o.queue = o.queue[1:]
			j := o.latest[id]
			delete(o.latest, id)
			o.mu.Unlock()
			return j, true
		}
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return Job{}, false
		}
		<-o.wake
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// clamp returns v bounded to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

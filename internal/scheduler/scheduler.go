// Package scheduler wires up the cron job that periodically submits the
// configured scrapes.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/elektrikmusik/linkedin-scraper/internal/config"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
)

// Submitter accepts scrape requests; *jobs.Orchestrator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (string, error)
}

// Scheduler wraps robfig/cron and submits every configured scrape on each
// tick. Jobs run asynchronously in the orchestrator; a tick only submits.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	spec      string // cron spec, e.g. "@every 6h"
	entries   []config.ScheduledScrape
}

// New creates a Scheduler firing on spec.
func New(submitter Submitter, spec string, entries []config.ScheduledScrape) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cron.PrintfLogger(&log.Logger))),
		submitter: submitter,
		spec:      spec,
		entries:   entries,
	}
}

// Start registers the job and starts the scheduler. It also submits one
// round immediately so boards fill without waiting for the first tick.
// With no entries configured Start does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.entries) == 0 {
		log.Printf("[scheduler] No scheduled scrapes configured, cron disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.spec, err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started, spec: %s, %d scrape(s)", s.spec, len(s.entries))

	go s.RunOnce(ctx)
	return nil
}

// Stop shuts the scheduler down and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("[scheduler] Cron stopped")
}

// RunOnce submits every configured scrape and returns how many were
// accepted. Rejected submissions are logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	submitted := 0
	for _, e := range s.entries {
		if ctx.Err() != nil {
			break
		}
		id, err := s.submitter.Submit(ctx, jobs.Request{
			Collection: e.Collection,
			Limit:      e.Limit,
			Details:    e.Details,
			OwnerID:    e.OwnerID,
		})
		if err != nil {
			log.Printf("[scheduler] Submit %s for %s failed: %v", e.Collection, e.OwnerID, err)
			continue
		}
		submitted++
		log.Printf("[scheduler] Submitted %s for %s as job %s", e.Collection, e.OwnerID, id)
	}
	return submitted
}

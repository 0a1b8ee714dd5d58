package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
	"github.com/elektrikmusik/linkedin-scraper/internal/match"
	"github.com/elektrikmusik/linkedin-scraper/internal/model"
)

const persistTimeout = 10 * time.Second

// Source fetches listing pages and posting pages from the job board.
type Source interface {
	FetchPage(ctx context.Context, cfg collection.Config, page int) ([]model.Posting, error)
	FetchDetail(ctx context.Context, postingID string) (*model.PostingDetail, error)
}

// Sink persists one posting for one owner. Saving the same (posting, owner)
// twice must update rather than duplicate.
type Sink interface {
	Upsert(ctx context.Context, ownerID, collection string, p model.Posting) error
}

// Candidate supplies the qualifications postings are matched against and
// the exclusion terms that keep a posting off the board.
type Candidate interface {
	Qualifications() []string
	RedFlags() []string
}

// Worker runs a single scrape job: page through the collection, optionally
// enrich each posting, persist it, and report progress to the Store. It
// implements jobs.Runner and is safe to share between jobs.
type Worker struct {
	store     *jobs.Store
	catalog   jobs.Catalog
	source    Source
	sink      Sink
	candidate Candidate
	retry     RetryPolicy
}

// NewWorker wires a Worker. candidate may be nil.
func NewWorker(store *jobs.Store, catalog jobs.Catalog, source Source, sink Sink, candidate Candidate, retry RetryPolicy) *Worker {
	return &Worker{
		store:     store,
		catalog:   catalog,
		source:    source,
		sink:      sink,
		candidate: candidate,
		retry:     retry,
	}
}

// Run scrapes up to j.Limit postings. It returns nil when the collection is
// exhausted or the limit is reached, and a *jobs.Error when a listing page
// still fails after retries or ctx is cancelled. Failures on a single
// posting skip that posting and never fail the job.
func (w *Worker) Run(ctx context.Context, j jobs.Job) error {
	cfg, err := w.catalog.Get(j.Collection)
	if err != nil {
		return &jobs.Error{Kind: jobs.KindUnknownCollection, Msg: fmt.Sprintf("Unknown collection %q", j.Collection), Err: err}
	}

	var possessed, flags []string
	if w.candidate != nil {
		flags = w.candidate.RedFlags()
		if j.Details {
			possessed = w.candidate.Qualifications()
		}
	}

	pages := pageCount(j.Limit, cfg.PageSize, j.MaxPages, cfg.MaxPages)
	seen := make(map[string]struct{}, j.Limit)
	processed, collected := 0, 0

	log.Printf("[worker] Job %s: scraping %s, limit=%d pages=%d details=%t", j.ID, cfg.Name, j.Limit, pages, j.Details)

	for page := 1; page <= pages && processed < j.Limit; page++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		w.report(j.ID, processed, collected, j.Limit, fmt.Sprintf("Fetching page %d of %d", page, pages))

		var summaries []model.Posting
		err := w.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			summaries, err = w.source.FetchPage(ctx, cfg, page)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx.Err())
			}
			return pageError(page, w.retry.attempts(), err)
		}
		if len(summaries) == 0 {
			log.Printf("[worker] Job %s: page %d is empty, collection exhausted", j.ID, page)
			break
		}

		for _, p := range summaries {
			if processed >= j.Limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return cancelled(err)
			}
			if _, dup := seen[p.JobID]; dup {
				continue
			}
			seen[p.JobID] = struct{}{}
			processed++

			if w.process(ctx, j, cfg, p, possessed, flags) {
				collected++
			}
			w.report(j.ID, processed, collected, j.Limit, fmt.Sprintf("Page %d: %d postings saved", page, collected))
		}
	}

	log.Printf("[worker] Job %s: done, %d of %d postings saved", j.ID, collected, processed)
	return nil
}

// process enriches and persists one posting, reporting whether it was saved.
func (w *Worker) process(ctx context.Context, j jobs.Job, cfg collection.Config, p model.Posting, possessed, flags []string) bool {
	p.Collection = cfg.Name

	// Title and company are checked before paying for a detail fetch.
	if flag := redFlag(p, flags); flag != "" {
		log.Printf("[worker] Job %s: posting %s discarded, red flag %q", j.ID, p.JobID, flag)
		return false
	}

	if j.Details {
		var detail *model.PostingDetail
		err := w.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			detail, err = w.source.FetchDetail(ctx, p.JobID)
			return err
		})
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("jobId", j.ID).Str("postingId", p.JobID).Msg("detail fetch failed, skipping posting")
			}
			return false
		}
		p.ApplyDetail(detail)
		if flag := redFlag(p, flags); flag != "" {
			log.Printf("[worker] Job %s: posting %s discarded, red flag %q", j.ID, p.JobID, flag)
			return false
		}
		analysis := match.Match(detail.Qualifications, possessed)
		p.MatchAnalysis = &analysis
	}

	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := w.sink.Upsert(pctx, j.OwnerID, cfg.Name, p); err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("jobId", j.ID).Str("postingId", p.JobID).Msg("persist failed, skipping posting")
		}
		return false
	}
	return true
}

func (w *Worker) report(id string, processed, collected, limit int, msg string) {
	progress := processed * 100 / limit
	if _, err := w.store.Report(id, progress, collected, msg); err != nil && !errors.Is(err, jobs.ErrTerminal) {
		log.Debug().Err(err).Str("jobId", id).Msg("progress report rejected")
	}
}

// pageCount is the number of listing pages needed for limit postings,
// capped by the request and by the collection.
func pageCount(limit, pageSize, requestMax, collectionMax int) int {
	if pageSize <= 0 {
		pageSize = 1
	}
	n := (limit + pageSize - 1) / pageSize
	if requestMax > 0 && requestMax < n {
		n = requestMax
	}
	if collectionMax > 0 && collectionMax < n {
		n = collectionMax
	}
	if n < 1 {
		n = 1
	}
	return n
}

func cancelled(err error) error {
	return &jobs.Error{Kind: jobs.KindCancelled, Msg: "Scrape cancelled", Err: err}
}

func pageError(page, attempts int, err error) error {
	kind := jobs.KindOf(err)
	var msg string
	switch kind {
	case jobs.KindSourceUnreachable:
		msg = fmt.Sprintf("Source unreachable on page %d after %d attempts", page, attempts)
	case jobs.KindRateLimited:
		msg = fmt.Sprintf("Rate limited by source on page %d after %d attempts", page, attempts)
	case jobs.KindParseFailure:
		msg = fmt.Sprintf("Could not parse page %d after %d attempts", page, attempts)
	default:
		msg = fmt.Sprintf("Page %d failed", page)
	}
	return &jobs.Error{Kind: kind, Msg: msg, Err: err}
}

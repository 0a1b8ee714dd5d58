package scraper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
	"github.com/elektrikmusik/linkedin-scraper/internal/model"
	"github.com/elektrikmusik/linkedin-scraper/internal/scraper"
)

// ── Fakes ───────────────────────────────────────────────

type fakeSource struct {
	mu        sync.Mutex
	pages     map[int][]model.Posting
	pageErr   map[int]error
	details   map[string]*model.PostingDetail
	detailErr map[string]error
	pageCalls map[int]int
	onPage    func(page int)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:     map[int][]model.Posting{},
		pageErr:   map[int]error{},
		details:   map[string]*model.PostingDetail{},
		detailErr: map[string]error{},
		pageCalls: map[int]int{},
	}
}

func (f *fakeSource) FetchPage(_ context.Context, _ collection.Config, page int) ([]model.Posting, error) {
	f.mu.Lock()
	f.pageCalls[page]++
	postings, err, hook := f.pages[page], f.pageErr[page], f.onPage
	f.mu.Unlock()
	if hook != nil {
		hook(page)
	}
	if err != nil {
		return nil, err
	}
	return postings, nil
}

func (f *fakeSource) FetchDetail(_ context.Context, id string) (*model.PostingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return &model.PostingDetail{}, nil
}

func (f *fakeSource) calls(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls[page]
}

type fakeSink struct {
	mu     sync.Mutex
	saved  map[string]model.Posting
	writes map[string]int
	fail   map[string]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{saved: map[string]model.Posting{}, writes: map[string]int{}, fail: map[string]bool{}}
}

func (s *fakeSink) Upsert(_ context.Context, ownerID, collection string, p model.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[p.JobID] {
		return jobs.Errorf(jobs.KindInternal, "db down")
	}
	key := ownerID + "/" + p.JobID
	s.saved[key] = p
	s.writes[key]++
	return nil
}

type staticCandidate struct {
	quals []string
	flags []string
}

func (c staticCandidate) Qualifications() []string { return c.quals }
func (c staticCandidate) RedFlags() []string       { return c.flags }

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (l *progressLog) Publish(_ context.Context, j jobs.Job) error {
	l.mu.Lock()
	l.values = append(l.values, j.Progress)
	l.mu.Unlock()
	return nil
}

// ── Helpers ─────────────────────────────────────────────

func postings(ids ...string) []model.Posting {
	out := make([]model.Posting, len(ids))
	for i, id := range ids {
		out[i] = model.Posting{JobID: id, Title: "Role " + id, Company: "Acme"}
	}
	return out
}

type harness struct {
	store  *jobs.Store
	source *fakeSource
	sink   *fakeSink
	worker *scraper.Worker
	log    *progressLog
}

func newHarness(candidate scraper.Candidate) *harness {
	h := &harness{source: newFakeSource(), sink: newFakeSink(), log: &progressLog{}}
	h.store = jobs.NewStore(h.log)
	reg := collection.NewRegistry(collection.Config{Name: "recommended", PageSize: 2, MaxPages: 5})
	h.worker = scraper.NewWorker(h.store, reg, h.source, h.sink, candidate, scraper.RetryPolicy{MaxAttempts: 3})
	return h
}

func (h *harness) start(t *testing.T, limit, maxPages int, details bool) jobs.Job {
	t.Helper()
	j, err := h.store.Create(jobs.Job{
		ID: "job-1", Collection: "recommended", OwnerID: "user-1",
		Limit: limit, MaxPages: maxPages, Details: details,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	j, err = h.store.Start(j.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return j
}

func (h *harness) job(t *testing.T) jobs.Job {
	t.Helper()
	j, err := h.store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return j
}

// ── Tests ───────────────────────────────────────────────

func TestWorker_CollectsUpToLimit(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pages[2] = postings("c", "d")
	h.source.pages[3] = postings("e", "f")

	if err := h.worker.Run(context.Background(), h.start(t, 3, 0, false)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.sink.saved) != 3 {
		t.Errorf("saved %d postings, want 3", len(h.sink.saved))
	}
	if _, ok := h.sink.saved["user-1/d"]; ok {
		t.Error("posting beyond the limit was saved")
	}
	if h.source.calls(3) != 0 {
		t.Error("page 3 fetched although the limit was reached on page 2")
	}
	j := h.job(t)
	if j.JobsCollected != 3 || j.Progress != 100 {
		t.Errorf("collected=%d progress=%d, want 3/100", j.JobsCollected, j.Progress)
	}
	if p := h.sink.saved["user-1/a"]; p.Collection != "recommended" {
		t.Errorf("collection = %q", p.Collection)
	}
}

func TestWorker_ProgressNeverDecreases(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pages[2] = postings("c", "d")

	if err := h.worker.Run(context.Background(), h.start(t, 4, 0, false)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.store.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	for i := 1; i < len(h.log.values); i++ {
		if h.log.values[i] < h.log.values[i-1] {
			t.Fatalf("progress went backwards: %v", h.log.values)
		}
	}
	if last := h.log.values[len(h.log.values)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestWorker_StopsOnEmptyPage(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")

	if err := h.worker.Run(context.Background(), h.start(t, 10, 0, false)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.source.calls(2) != 1 || h.source.calls(3) != 0 {
		t.Errorf("page calls 2=%d 3=%d, want 1/0", h.source.calls(2), h.source.calls(3))
	}
	j := h.job(t)
	if j.JobsCollected != 2 || j.Progress != 20 {
		t.Errorf("collected=%d progress=%d, want 2/20", j.JobsCollected, j.Progress)
	}
}

func TestWorker_RespectsPageCap(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pages[2] = postings("c", "d")

	if err := h.worker.Run(context.Background(), h.start(t, 10, 1, false)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.source.calls(2) != 0 {
		t.Error("page 2 fetched despite a one-page cap")
	}
}

func TestWorker_PageFailureFailsJob(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pageErr[2] = jobs.Errorf(jobs.KindSourceUnreachable, "connection refused")
	h.source.pages[3] = postings("e", "f")

	err := h.worker.Run(context.Background(), h.start(t, 6, 0, false))
	if got := jobs.KindOf(err); got != jobs.KindSourceUnreachable {
		t.Fatalf("kind = %q, want SourceUnreachable (err=%v)", got, err)
	}
	if h.source.calls(2) != 3 {
		t.Errorf("page 2 attempts = %d, want 3", h.source.calls(2))
	}
	if h.source.calls(3) != 0 {
		t.Error("page 3 fetched after page 2 exhausted its retries")
	}
	if len(h.sink.saved) != 2 {
		t.Errorf("saved %d, want postings of page 1 kept", len(h.sink.saved))
	}
}

func TestWorker_DetailsRunMatcher(t *testing.T) {
	h := newHarness(staticCandidate{quals: []string{"go", "  SQL "}})
	h.source.pages[1] = postings("a", "b")
	h.source.details["a"] = &model.PostingDetail{
		Description:    "Build services",
		EmploymentType: "Full-time",
		Qualifications: []string{"Go", "Rust", "sql"},
		HiringTeam:     []model.HiringTeamMember{{Name: "Jane Doe", IsJobPoster: true}},
	}

	if err := h.worker.Run(context.Background(), h.start(t, 2, 0, true)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	a := h.sink.saved["user-1/a"]
	if a.Description != "Build services" || a.EmploymentType != "Full-time" || len(a.HiringTeam) != 1 {
		t.Errorf("detail not merged: %+v", a)
	}
	if a.MatchAnalysis == nil {
		t.Fatal("match analysis missing")
	}
	if a.MatchAnalysis.Summary != "2 of 3 qualifications matched" {
		t.Errorf("summary = %q", a.MatchAnalysis.Summary)
	}
	if len(a.MatchAnalysis.MissingQualifications) != 1 || a.MatchAnalysis.MissingQualifications[0] != "Rust" {
		t.Errorf("missing = %v, want [Rust]", a.MatchAnalysis.MissingQualifications)
	}

	b := h.sink.saved["user-1/b"]
	if b.MatchAnalysis == nil || b.MatchAnalysis.Summary != "No qualifications were listed for this posting" {
		t.Errorf("empty qualifications analysis = %+v", b.MatchAnalysis)
	}
}

func TestWorker_NoDetailsNoAnalysis(t *testing.T) {
	h := newHarness(staticCandidate{quals: []string{"go"}})
	h.source.pages[1] = postings("a")

	if err := h.worker.Run(context.Background(), h.start(t, 1, 0, false)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.sink.saved["user-1/a"].MatchAnalysis != nil {
		t.Error("match analysis present without details")
	}
}

func TestWorker_SkipsFailedPostings(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pages[2] = postings("c", "d")
	h.source.detailErr["b"] = jobs.Errorf(jobs.KindParseFailure, "no description")
	h.sink.fail["c"] = true

	if err := h.worker.Run(context.Background(), h.start(t, 4, 0, true)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.sink.saved) != 2 {
		t.Errorf("saved %d, want 2 (a and d)", len(h.sink.saved))
	}
	j := h.job(t)
	if j.JobsCollected != 2 || j.Progress != 100 {
		t.Errorf("collected=%d progress=%d, want 2/100", j.JobsCollected, j.Progress)
	}
}

func TestWorker_DuplicatePostingsCountOnce(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pages[2] = postings("b", "c")

	if err := h.worker.Run(context.Background(), h.start(t, 3, 0, false)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.sink.writes["user-1/b"] != 1 {
		t.Errorf("b written %d times, want 1", h.sink.writes["user-1/b"])
	}
	if len(h.sink.saved) != 3 {
		t.Errorf("saved %d, want 3", len(h.sink.saved))
	}
}

func TestWorker_Cancelled(t *testing.T) {
	h := newHarness(nil)
	h.source.pages[1] = postings("a", "b")
	h.source.pages[2] = postings("c", "d")

	ctx, cancel := context.WithCancel(context.Background())
	h.source.onPage = func(page int) {
		if page == 1 {
			cancel()
		}
	}

	err := h.worker.Run(ctx, h.start(t, 4, 0, false))
	if got := jobs.KindOf(err); got != jobs.KindCancelled {
		t.Fatalf("kind = %q, want Cancelled (err=%v)", got, err)
	}
	if h.source.calls(2) != 0 {
		t.Error("page 2 fetched after cancellation")
	}
	if len(h.sink.saved) != 0 {
		t.Errorf("saved %d after cancellation, want 0", len(h.sink.saved))
	}
}

func TestWorker_UnknownCollection(t *testing.T) {
	h := newHarness(nil)
	j, _ := h.store.Create(jobs.Job{ID: "job-1", Collection: "gone", OwnerID: "user-1", Limit: 1})
	j, _ = h.store.Start(j.ID)

	err := h.worker.Run(context.Background(), j)
	if got := jobs.KindOf(err); got != jobs.KindUnknownCollection {
		t.Errorf("kind = %q, want UnknownCollection", got)
	}
}

func TestWorker_RedFlagsDiscardPostings(t *testing.T) {
	h := newHarness(staticCandidate{flags: []string{"UNPAID", "crypto"}})
	h.source.pages[1] = []model.Posting{
		{JobID: "a", Title: "Unpaid Internship", Company: "Acme"},
		{JobID: "b", Title: "Go Engineer", Company: "Acme"},
		{JobID: "c", Title: "Backend Engineer", Company: "Initech"},
	}
	h.source.details["c"] = &model.PostingDetail{Description: "Join our Crypto trading desk"}

	if err := h.worker.Run(context.Background(), h.start(t, 3, 0, true)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.sink.saved) != 1 {
		t.Fatalf("saved %d, want only b", len(h.sink.saved))
	}
	if _, ok := h.sink.saved["user-1/b"]; !ok {
		t.Error("clean posting was not saved")
	}
	if j := h.job(t); j.JobsCollected != 1 || j.Progress != 100 {
		t.Errorf("collected=%d progress=%d, want 1/100", j.JobsCollected, j.Progress)
	}
}

func TestOrchestratedScrape_PageFailureFailsJob(t *testing.T) {
	source := newFakeSource()
	source.pageErr[1] = jobs.Errorf(jobs.KindSourceUnreachable, "connection refused")
	source.pages[2] = postings("c", "d")

	reg := collection.NewRegistry(collection.Config{Name: "top-applicant", PageSize: 5, MaxPages: 5})
	store := jobs.NewStore(nil)
	worker := scraper.NewWorker(store, reg, source, newFakeSink(), nil, scraper.RetryPolicy{MaxAttempts: 3})
	orch := jobs.NewOrchestrator(store, reg, worker, jobs.Options{MaxLimit: 50})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		orch.Shutdown(ctx)
	})

	id, err := orch.Submit(context.Background(), jobs.Request{
		Collection: "top-applicant", Limit: 10, Details: true, OwnerID: "user-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var j jobs.Job
	for {
		if j, err = orch.Status(id); err != nil {
			t.Fatalf("Status: %v", err)
		}
		if j.Done() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %s", j.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if j.Status != jobs.StatusFailed || j.Error != jobs.KindSourceUnreachable {
		t.Fatalf("job = %+v, want failed with SourceUnreachable", j)
	}
	if j.Message != "Source unreachable on page 1 after 3 attempts" {
		t.Errorf("message = %q", j.Message)
	}
	if source.calls(1) != 3 || source.calls(2) != 0 {
		t.Errorf("page calls = %d/%d, want 3/0", source.calls(1), source.calls(2))
	}
}

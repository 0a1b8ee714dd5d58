package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elektrikmusik/linkedin-scraper/internal/api"
	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
)

type waitRunner struct {
	release chan struct{}
}

func (r *waitRunner) Run(ctx context.Context, _ jobs.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.release:
		return nil
	}
}

type mapMirror map[string]jobs.Job

func (m mapMirror) Lookup(_ context.Context, id string) (jobs.Job, error) {
	if j, ok := m[id]; ok {
		return j, nil
	}
	return jobs.Job{}, jobs.ErrNotFound
}

type fixture struct {
	mux    *http.ServeMux
	orch   *jobs.Orchestrator
	runner *waitRunner
}

func newFixture(t *testing.T, mirror api.Mirror) *fixture {
	t.Helper()
	reg := collection.NewRegistry(
		collection.Config{Name: "recommended", Label: "Recommended"},
		collection.Config{Name: "remote-jobs", Label: "Remote"},
	)
	runner := &waitRunner{release: make(chan struct{})}
	orch := jobs.NewOrchestrator(jobs.NewStore(nil), reg, runner, jobs.Options{MaxLimit: 100})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		orch.Shutdown(ctx)
	})

	mux := http.NewServeMux()
	api.NewHandler(orch, mirror).RegisterRoutes(mux)
	return &fixture{mux: mux, orch: orch, runner: runner}
}

func (f *fixture) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set("x-user-id", userID)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, rec.Body.String())
	}
	return v
}

func (f *fixture) submit(t *testing.T, userID, body string) string {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/scrape", userID, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]string](t, rec)["job_id"]
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCollections(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/collections", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]collection.Entry](t, rec)
	if len(got) != 2 || got[0].Name != "recommended" || got[1].Label != "Remote" {
		t.Errorf("collections = %+v", got)
	}

	if rec := f.do(http.MethodPost, "/api/collections", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestScrape_Accepted(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, "/api/scrape", "", `{"collection":"recommended","limit":10,"details":true,"owner_id":"user-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]string](t, rec)
	if resp["job_id"] == "" || resp["status"] != "pending" || resp["message"] == "" {
		t.Errorf("response = %v", resp)
	}

	status := f.do(http.MethodGet, "/api/jobs/"+resp["job_id"], "", "")
	if status.Code != http.StatusOK {
		t.Fatalf("status lookup = %d", status.Code)
	}
	j := decode[jobs.Job](t, status)
	if j.OwnerID != "user-1" || j.Limit != 10 || !j.Details {
		t.Errorf("job = %+v", j)
	}
}

func TestScrape_OwnerFromHeader(t *testing.T) {
	f := newFixture(t, nil)
	id := f.submit(t, "user-7", `{"collection":"remote-jobs","limit":5}`)

	j, err := f.orch.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if j.OwnerID != "user-7" {
		t.Errorf("owner = %q, want header value", j.OwnerID)
	}
}

func TestScrape_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		body     string
		wantCode int
		wantKind string
	}{
		{"unknown collection", "user-1", `{"collection":"nope","limit":5}`, http.StatusBadRequest, "UnknownCollection"},
		{"zero limit", "user-1", `{"collection":"recommended","limit":0}`, http.StatusBadRequest, "InvalidLimit"},
		{"limit too large", "user-1", `{"collection":"recommended","limit":101}`, http.StatusBadRequest, "InvalidLimit"},
		{"no owner", "", `{"collection":"recommended","limit":5}`, http.StatusUnauthorized, "Unauthenticated"},
		{"bad json", "user-1", `{"collection":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(http.MethodPost, "/api/scrape", tt.userID, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			body := decode[map[string]string](t, rec)
			if body["kind"] != tt.wantKind {
				t.Errorf("kind = %q, want %q", body["kind"], tt.wantKind)
			}
			if len(f.orch.Jobs("")) != 0 {
				t.Error("rejected submission created a job")
			}
		})
	}
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(http.MethodGet, "/api/jobs/does-not-exist", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetJob_MirrorFallback(t *testing.T) {
	f := newFixture(t, mapMirror{
		"old-job": {ID: "old-job", OwnerID: "user-1", Status: jobs.StatusCompleted, Progress: 100},
	})
	rec := f.do(http.MethodGet, "/api/jobs/old-job", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if j := decode[jobs.Job](t, rec); j.Status != jobs.StatusCompleted {
		t.Errorf("job = %+v", j)
	}
}

func TestGetJob_MirroredRunningJobIsInterrupted(t *testing.T) {
	f := newFixture(t, mapMirror{
		"lost-job": {ID: "lost-job", OwnerID: "user-1", Status: jobs.StatusRunning, Progress: 40, Message: "page 2"},
	})
	rec := f.do(http.MethodGet, "/api/jobs/lost-job", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	j := decode[jobs.Job](t, rec)
	if j.Status != jobs.StatusFailed || j.Error != jobs.KindInternal {
		t.Errorf("job = %+v, want failed/Internal", j)
	}
	if j.Progress != 40 {
		t.Errorf("progress = %d, want last mirrored value 40", j.Progress)
	}
}

func TestGetJob_OtherOwner(t *testing.T) {
	f := newFixture(t, nil)
	id := f.submit(t, "user-1", `{"collection":"recommended","limit":5}`)
	if rec := f.do(http.MethodGet, "/api/jobs/"+id, "user-2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, nil)
	f.submit(t, "user-1", `{"collection":"recommended","limit":5}`)
	f.submit(t, "user-1", `{"collection":"remote-jobs","limit":5}`)
	f.submit(t, "user-2", `{"collection":"recommended","limit":5}`)

	rec := f.do(http.MethodGet, "/api/jobs", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[[]jobs.Job](t, rec); len(got) != 2 {
		t.Errorf("listed %d jobs, want 2", len(got))
	}

	if rec := f.do(http.MethodGet, "/api/jobs", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header status = %d, want 401", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	f := newFixture(t, nil)
	id := f.submit(t, "user-1", `{"collection":"recommended","limit":5}`)

	if rec := f.do(http.MethodPost, "/api/jobs/"+id+"/cancel", "user-1", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, body = %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		j, _ := f.orch.Status(id)
		if j.Done() {
			if j.Status != jobs.StatusFailed || j.Error != jobs.KindCancelled {
				t.Fatalf("job = %+v, want failed/Cancelled", j)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := f.do(http.MethodPost, "/api/jobs/"+id+"/cancel", "user-1", ""); rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/jobs/missing/cancel", "user-1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing cancel status = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/jobs/"+id+"/cancel", "user-1", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET cancel status = %d, want 405", rec.Code)
	}
}

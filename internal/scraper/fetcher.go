package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
	"github.com/elektrikmusik/linkedin-scraper/internal/model"
)

const (
	httpTimeout     = 15 * time.Second
	maxBodyBytes    = 8 << 20
	defaultUA       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	offsetParameter = "start"
)

// SourceOptions configures an HTTPSource.
type SourceOptions struct {
	BaseURL           string
	Cookie            string // sent verbatim as the Cookie header
	Timeout           time.Duration
	RequestsPerSecond float64
}

// HTTPSource fetches collection listings and posting pages over HTTP.
// One HTTPSource is shared by every worker, so its limiter bounds the total
// request rate against the job board, not the rate per job.
type HTTPSource struct {
	baseURL string
	cookie  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource constructs a source with a shared HTTP client.
func NewHTTPSource(opts SourceOptions) *HTTPSource {
	if opts.Timeout <= 0 {
		opts.Timeout = httpTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &HTTPSource{
		baseURL: opts.BaseURL,
		cookie:  opts.Cookie,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchPage returns the posting summaries on one listing page (1-based).
// An empty slice means the collection has no more postings.
func (s *HTTPSource) FetchPage(ctx context.Context, cfg collection.Config, page int) ([]model.Posting, error) {
	params := url.Values{}
	for k, vs := range cfg.Query {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set(offsetParameter, strconv.Itoa((page-1)*cfg.PageSize))

	doc, err := s.get(ctx, s.baseURL+cfg.Path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	postings, err := parseListing(doc, s.baseURL, cfg.Name)
	if err != nil {
		return nil, &jobs.Error{Kind: jobs.KindParseFailure, Msg: fmt.Sprintf("Could not parse listing page %d", page), Err: err}
	}
	return postings, nil
}

// FetchDetail returns the fields only shown on a posting's own page.
func (s *HTTPSource) FetchDetail(ctx context.Context, postingID string) (*model.PostingDetail, error) {
	doc, err := s.get(ctx, postingURL(s.baseURL, postingID))
	if err != nil {
		return nil, err
	}
	d, err := parseDetail(doc, s.baseURL)
	if err != nil {
		return nil, &jobs.Error{Kind: jobs.KindParseFailure, Msg: "Could not parse posting page", Err: err}
	}
	return d, nil
}

// get performs one rate-limited GET and classifies failures into job error
// kinds: transport errors, timeouts, and non-200 responses are
// SourceUnreachable; 429 is RateLimited.
func (s *HTTPSource) get(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &jobs.Error{Kind: jobs.KindRateLimited, Msg: "Request budget exhausted", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &jobs.Error{Kind: jobs.KindSourceUnreachable, Msg: "Source unreachable", Err: fmt.Errorf("http GET: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		e := &jobs.Error{Kind: jobs.KindRateLimited, Msg: "Rate limited by source", Err: fmt.Errorf("source returned %d", resp.StatusCode)}
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			return nil, &retryAfterError{after: after, err: e}
		}
		return nil, e
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &jobs.Error{Kind: jobs.KindSourceUnreachable, Msg: "Source unreachable", Err: fmt.Errorf("source returned %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &jobs.Error{Kind: jobs.KindSourceUnreachable, Msg: "Source unreachable", Err: fmt.Errorf("read body: %w", err)}
	}
	return doc, nil
}

func postingURL(baseURL, postingID string) string {
	return fmt.Sprintf("%s/jobs/view/%s/", baseURL, url.PathEscape(postingID))
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

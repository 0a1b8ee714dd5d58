// Package events fans job snapshots out over Redis so other services can
// follow scrape progress without polling this one.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
)

// ChannelScrapeProgress is the pub/sub channel carrying every job snapshot.
const ChannelScrapeProgress = "EVENT_SCRAPE_PROGRESS"

const keyPrefix = "scrape_job:"

// Client is the subset of *redis.Client the publisher needs.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Event is the message published for each committed job version.
type Event struct {
	Type   string   `json:"type"`
	UserID string   `json:"userId"`
	Job    jobs.Job `json:"job"`
}

// RedisPublisher implements jobs.Publisher. Each snapshot is published on
// ChannelScrapeProgress and mirrored under scrape_job:<id> for ttl.
type RedisPublisher struct {
	rdb Client
	ttl time.Duration
}

// NewRedisPublisher returns a publisher; ttl <= 0 keeps mirrored snapshots
// forever.
func NewRedisPublisher(rdb Client, ttl time.Duration) *RedisPublisher {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisPublisher{rdb: rdb, ttl: ttl}
}

// Publish sends j to subscribers and refreshes its mirror.
func (p *RedisPublisher) Publish(ctx context.Context, j jobs.Job) error {
	snap, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("events: encode job %s: %w", j.ID, err)
	}
	event, err := json.Marshal(Event{Type: ChannelScrapeProgress, UserID: j.OwnerID, Job: j})
	if err != nil {
		return fmt.Errorf("events: encode event %s: %w", j.ID, err)
	}

	var errs []error
	if err := p.rdb.Set(ctx, keyPrefix+j.ID, snap, p.ttl).Err(); err != nil {
		errs = append(errs, fmt.Errorf("mirror %s: %w", j.ID, err))
	}
	if err := p.rdb.Publish(ctx, ChannelScrapeProgress, event).Err(); err != nil {
		errs = append(errs, fmt.Errorf("publish %s: %w", ChannelScrapeProgress, err))
	}
	return errors.Join(errs...)
}

// Lookup returns the last mirrored snapshot of a job, which outlives the
// process that ran it. It returns jobs.ErrNotFound when nothing is mirrored.
func (p *RedisPublisher) Lookup(ctx context.Context, id string) (jobs.Job, error) {
	raw, err := p.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return jobs.Job{}, jobs.ErrNotFound
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("events: lookup %s: %w", id, err)
	}
	var j jobs.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return jobs.Job{}, fmt.Errorf("events: decode %s: %w", id, err)
	}
	return j, nil
}

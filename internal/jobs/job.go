package jobs

import "time"

// Job is one asynchronous unit of scrape work. Values handed out by the
// Store are snapshots; changing them has no effect on the stored job.
type Job struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	OwnerID    string `json:"owner_id"`
	Limit      int    `json:"limit"`
	MaxPages   int    `json:"max_pages,omitempty"` // 0 = derived from limit
	Details    bool   `json:"details"`

	Status        Status    `json:"status"`
	Progress      int       `json:"progress"`
	Message       string    `json:"message"`
	JobsCollected int       `json:"jobs_collected"`
	Error         ErrorKind `json:"error,omitempty"`

	// Version increases by one on every committed write.
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool { return IsTerminal(j.Status) }

// Package registry holds the set of active download jobs keyed by chat.
// It is the only state shared between jobs.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

type entry struct {
	job  domain.Job
	stop func()
}

// Registry maps a chat to its single active job
type Registry struct {
	mu   sync.Mutex
	jobs map[int64]*entry
	max  int
	now  func() time.Time
}

// New creates a registry admitting at most max jobs
func New(max int) *Registry {
	return &Registry{
		jobs: make(map[int64]*entry),
		max:  max,
		now:  time.Now,
	}
}

// Max returns the admission limit
func (r *Registry) Max() int {
	return r.max
}

// Admit inserts the job if the registry has room and the chat has no job.
// The check and the insert happen under one lock.
func (r *Registry) Admit(job domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) >= r.max {
		return fmt.Errorf("%w (%d)", domain.ErrMaxDownloadsReached, r.max)
	}
	if _, exists := r.jobs[job.ChatID]; exists {
		return fmt.Errorf("%w: chat %d", domain.ErrDownloadInProgress, job.ChatID)
	}

	r.jobs[job.ChatID] = &entry{job: job}
	return nil
}

// Attach sets the hook run when the job leaves the registry.
// A previously attached hook is run immediately.
func (r *Registry) Attach(chatID int64, jobID string, stop func()) bool {
	r.mu.Lock()
	e, ok := r.lookup(chatID, jobID)
	var prev func()
	if ok {
		prev = e.stop
		e.stop = stop
	}
	r.mu.Unlock()

	if prev != nil {
		prev()
	}
	return ok
}

// Remove deletes the job if it is still the chat's current job and runs its hook
func (r *Registry) Remove(chatID int64, jobID string) bool {
	r.mu.Lock()
	e, ok := r.lookup(chatID, jobID)
	if ok {
		delete(r.jobs, chatID)
	}
	r.mu.Unlock()

	if ok && e.stop != nil {
		e.stop()
	}
	return ok
}

// RemoveInState deletes the chat's job only if it is in the given state.
// An empty jobID matches whichever job the chat owns.
func (r *Registry) RemoveInState(chatID int64, jobID string, state domain.State) (domain.Job, bool) {
	r.mu.Lock()
	e, ok := r.jobs[chatID]
	if ok && e.job.State == state && (jobID == "" || e.job.ID == jobID) {
		delete(r.jobs, chatID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return domain.Job{}, false
	}
	if e.stop != nil {
		e.stop()
	}
	return e.job, true
}

// Transition moves the chat's job from one state to another and returns the updated copy
func (r *Registry) Transition(chatID int64, from, to domain.State) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[chatID]
	if !ok || e.job.State != from {
		return domain.Job{}, false
	}
	e.job.State = to
	return e.job, true
}

// Update applies fn to the stored job if it is still registered
func (r *Registry) Update(chatID int64, jobID string, fn func(*domain.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.lookup(chatID, jobID)
	if ok {
		fn(&e.job)
	}
	return ok
}

// Contains reports whether the job is still registered
func (r *Registry) Contains(chatID int64, jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.lookup(chatID, jobID)
	return ok
}

// Get returns a copy of the chat's job
func (r *Registry) Get(chatID int64) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[chatID]
	if !ok {
		return domain.Job{}, false
	}
	return e.job, true
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Snapshot returns all registered jobs ordered by start time
func (r *Registry) Snapshot() []domain.ActiveJob {
	r.mu.Lock()
	now := r.now()
	active := make([]domain.ActiveJob, 0, len(r.jobs))
	for _, e := range r.jobs {
		active = append(active, domain.ActiveJob{
			JobID:     e.job.ID,
			ChatID:    e.job.ChatID,
			URL:       e.job.URL,
			Format:    e.job.Format,
			State:     e.job.State,
			StartedAt: e.job.StartedAt,
			Elapsed:   now.Sub(e.job.StartedAt),
			Bytes:     e.job.Bytes,
			Rate:      e.job.Rate,
		})
	}
	r.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		if active[i].StartedAt.Equal(active[j].StartedAt) {
			return active[i].ChatID < active[j].ChatID
		}
		return active[i].StartedAt.Before(active[j].StartedAt)
	})
	return active
}

// lookup must be called with mu held
func (r *Registry) lookup(chatID int64, jobID string) (*entry, bool) {
	e, ok := r.jobs[chatID]
	if !ok || e.job.ID != jobID {
		return nil, false
	}
	return e, true
}

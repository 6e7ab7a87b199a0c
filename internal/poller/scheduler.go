package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/petdoor/watchbox/internal/backend"
	"github.com/petdoor/watchbox/internal/state"
)

// DefaultInterval is the period of both refresh cycles
const DefaultInterval = 5 * time.Second

// Backend is the slice of the API client the scheduler needs
type Backend interface {
	GetStatus(ctx context.Context) (*backend.SystemStatus, error)
	GetDetections(ctx context.Context, category backend.Category, limit int) (*backend.DetectionList, error)
}

// Scheduler drives the two periodic refresh cycles (status and
// detections) against the backend and applies completed polls to the
// store.
//
// Every dispatched poll carries a per-cycle generation number, bumped
// on each dispatch. A completion is applied only while its generation
// is still the latest dispatched one; anything older is discarded.
// That is what keeps a slow response for a previous filter (or an
// overtaken status poll) from clobbering newer state. In-flight HTTP
// calls are never aborted beyond context cancellation on shutdown,
// merely ignored on late arrival.
type Scheduler struct {
	client   Backend
	store    *state.Store
	interval time.Duration
	limit    int

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	filter        backend.Category
	statusGen     uint64
	statusPending bool
	detGen        uint64
	detPending    bool

	resetDet chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler polling every interval (zero means
// DefaultInterval) and asking for up to limit detections per poll.
func NewScheduler(client Backend, store *state.Store, interval time.Duration, limit int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if limit <= 0 {
		limit = backend.DefaultLimit
	}
	return &Scheduler{
		client:   client,
		store:    store,
		interval: interval,
		limit:    limit,
		filter:   backend.CategoryAll,
		resetDet: make(chan struct{}, 1),
	}
}

// Start launches both cycles. Each polls immediately, then on every
// timer tick. Cancelling ctx (or calling Stop) tears them down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	s.dispatchStatus(true)
	s.dispatchDetections(true)

	s.wg.Add(2)
	go s.statusLoop()
	go s.detectionsLoop()
}

// Stop cancels the timers and waits for in-flight polls to drain.
// Their results are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// SetFilter switches the detections cycle to a new category: the
// periodic timer restarts and exactly one poll for the new filter is
// dispatched immediately. The filter change and the generation bump
// happen in one critical section, so a poll still in flight for the
// old filter is superseded before SetFilter returns.
func (s *Scheduler) SetFilter(filter backend.Category) {
	s.mu.Lock()
	s.filter = filter
	if !s.started || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.detGen++
	gen := s.detGen
	s.detPending = true
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case s.resetDet <- struct{}{}:
	default:
	}
	s.pollDetections(ctx, gen, filter)
}

// ForceStatus dispatches an out-of-band status poll, bypassing the
// timer. Used by the toggle flow so the new active state shows up
// without waiting for the next tick.
func (s *Scheduler) ForceStatus() {
	s.dispatchStatus(true)
}

// ForceDetections dispatches an out-of-band detections poll for the
// current filter. Used by the delete flow. Like any poll it can be
// superseded by a later filter change.
func (s *Scheduler) ForceDetections() {
	s.dispatchDetections(true)
}

func (s *Scheduler) statusLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchStatus(false)
		}
	}
}

func (s *Scheduler) detectionsLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.resetDet:
			ticker.Reset(s.interval)
		case <-ticker.C:
			s.dispatchDetections(false)
		}
	}
}

// dispatchStatus starts a status poll. Timer ticks (force=false) skip
// while one is already in flight so a slow backend never piles up
// concurrent requests; forced dispatches always go out.
func (s *Scheduler) dispatchStatus(force bool) {
	s.mu.Lock()
	if !s.started || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if !force && s.statusPending {
		s.mu.Unlock()
		return
	}
	s.statusGen++
	gen := s.statusGen
	s.statusPending = true
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		status, err := s.client.GetStatus(ctx)
		s.completeStatus(gen, status, err)
	}()
}

// completeStatus applies a status completion if its generation is
// still the latest dispatched one (latest-dispatched-wins, not
// latest-completed-wins). Failures are logged and swallowed: the
// status bar keeps showing the last good value.
func (s *Scheduler) completeStatus(gen uint64, status *backend.SystemStatus, err error) {
	s.mu.Lock()
	if gen != s.statusGen {
		s.mu.Unlock()
		return
	}
	s.statusPending = false
	done := s.ctx.Err() != nil
	s.mu.Unlock()

	if done {
		return
	}
	if err != nil {
		log.Printf("⚠️ Status poll failed: %v", err)
		return
	}
	s.store.ApplyStatus(status)
}

func (s *Scheduler) dispatchDetections(force bool) {
	s.mu.Lock()
	if !s.started || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if !force && s.detPending {
		s.mu.Unlock()
		return
	}
	s.detGen++
	gen := s.detGen
	filter := s.filter
	s.detPending = true
	ctx := s.ctx
	s.mu.Unlock()

	s.pollDetections(ctx, gen, filter)
}

func (s *Scheduler) pollDetections(ctx context.Context, gen uint64, filter backend.Category) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		list, err := s.client.GetDetections(ctx, filter, s.limit)
		s.completeDetections(gen, filter, list, err)
	}()
}

// completeDetections applies a detections completion unless a newer
// poll has been dispatched since, in which case the result belongs to
// a superseded filter or tick and is dropped on the floor.
func (s *Scheduler) completeDetections(gen uint64, filter backend.Category, list *backend.DetectionList, err error) {
	s.mu.Lock()
	if gen != s.detGen {
		s.mu.Unlock()
		log.Printf("🗑️ Discarding stale detections poll (filter=%s)", filter)
		return
	}
	s.detPending = false
	done := s.ctx.Err() != nil
	s.mu.Unlock()

	if done {
		return
	}
	if err != nil {
		log.Printf("⚠️ Detections poll failed (filter=%s): %v", filter, err)
		s.store.FailDetections(err)
		return
	}
	s.store.ApplyDetections(list)
}

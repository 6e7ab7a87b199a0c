package state

import (
	"sync"

	"github.com/petdoor/watchbox/internal/backend"
)

// ViewState is the complete snapshot driving the dashboard. It is
// replaced wholesale on every transition, never mutated in place, so a
// reader always sees one consistent picture.
type ViewState struct {
	Filter     backend.Category      `json:"filter"`
	Detections []backend.Detection   `json:"detections"`
	Total      int                   `json:"total"`
	Selected   *backend.Detection    `json:"selected,omitempty"`
	Loading    bool                  `json:"loading"`
	Error      string                `json:"error,omitempty"`
	Status     *backend.SystemStatus `json:"status,omitempty"`
}

// Store holds the current ViewState and applies transitions to it.
// Each transition produces a fresh snapshot; an optional hook observes
// every new snapshot (the feed hub hangs off it).
type Store struct {
	mu       sync.RWMutex
	state    ViewState
	onChange func(ViewState)
}

// NewStore creates a store in the startup state: filter "all", empty
// list, nothing selected, first detections poll pending.
func NewStore(onChange func(ViewState)) *Store {
	return &Store{
		state: ViewState{
			Filter:     backend.CategoryAll,
			Detections: []backend.Detection{},
			Loading:    true,
		},
		onChange: onChange,
	}
}

// Snapshot returns a copy of the current state. The detections slice
// is copied so callers can hold it across later transitions.
func (s *Store) Snapshot() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// SetFilter switches the active category and puts the detections pane
// back into loading; the fresh list arrives with the next poll.
func (s *Store) SetFilter(filter backend.Category) {
	s.mu.Lock()
	s.state.Filter = filter
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
	s.notify()
}

// ApplyDetections replaces the detection list with a completed poll's
// result and reconciles the selection against the new list.
func (s *Store) ApplyDetections(list *backend.DetectionList) {
	s.mu.Lock()
	detections := make([]backend.Detection, len(list.Detections))
	copy(detections, list.Detections)

	s.state.Detections = detections
	s.state.Total = list.Total
	s.state.Loading = false
	s.state.Error = ""
	s.state.Selected = reconcileSelection(s.state.Selected, detections)
	s.mu.Unlock()
	s.notify()
}

// FailDetections records a failed detections poll. The stale list is
// dropped rather than shown as if current, which also clears any
// selection.
func (s *Store) FailDetections(err error) {
	s.mu.Lock()
	s.state.Detections = []backend.Detection{}
	s.state.Total = 0
	s.state.Loading = false
	s.state.Error = err.Error()
	s.state.Selected = nil
	s.mu.Unlock()
	s.notify()
}

// ApplyStatus replaces the status snapshot. Status poll failures never
// reach the store; the last good value keeps showing.
func (s *Store) ApplyStatus(status *backend.SystemStatus) {
	s.mu.Lock()
	copied := *status
	s.state.Status = &copied
	s.mu.Unlock()
	s.notify()
}

// Select marks the detection identified by (category, id) as the
// detail view's subject. Returns false if no such detection is in the
// current list; the selection is left unchanged in that case.
func (s *Store) Select(category backend.Category, id string) bool {
	s.mu.Lock()
	for i := range s.state.Detections {
		d := s.state.Detections[i]
		if d.Category == category && d.ID == id {
			s.state.Selected = &d
			s.mu.Unlock()
			s.notify()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// ClearSelection closes the detail view
func (s *Store) ClearSelection() {
	s.mu.Lock()
	changed := s.state.Selected != nil
	s.state.Selected = nil
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// DropSelected clears the selection if it points at (category, id).
// Called synchronously inside the delete flow so the detail view never
// shows a just-deleted event while the confirming refresh is in flight.
func (s *Store) DropSelected(category backend.Category, id string) {
	s.mu.Lock()
	sel := s.state.Selected
	if sel == nil || sel.Category != category || sel.ID != id {
		s.mu.Unlock()
		return
	}
	s.state.Selected = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

// reconcileSelection keeps the selected detection only if its
// (category, id) still appears in the new list. The kept value is the
// fresh copy from the list, not the old snapshot's.
func reconcileSelection(selected *backend.Detection, detections []backend.Detection) *backend.Detection {
	if selected == nil {
		return nil
	}
	for i := range detections {
		if detections[i].Same(*selected) {
			d := detections[i]
			return &d
		}
	}
	return nil
}

func copyState(st ViewState) ViewState {
	out := st
	out.Detections = make([]backend.Detection, len(st.Detections))
	copy(out.Detections, st.Detections)
	if st.Selected != nil {
		sel := *st.Selected
		out.Selected = &sel
	}
	if st.Status != nil {
		status := *st.Status
		out.Status = &status
	}
	return out
}

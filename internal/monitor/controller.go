// Package monitor ties the backend client, the view state store and
// the polling scheduler together behind the operations the dashboard
// is allowed to perform.
package monitor

import (
	"context"
	"fmt"
	"log"

	"github.com/petdoor/watchbox/internal/backend"
	"github.com/petdoor/watchbox/internal/state"
)

// Backend is the slice of the API client the mutation flows need
type Backend interface {
	Toggle(ctx context.Context) (*backend.ToggleResult, error)
	DeleteDetection(ctx context.Context, category backend.Category, id string) error
	GetConfig(ctx context.Context) (backend.Config, error)
	UpdateConfig(ctx context.Context, patch backend.Config) error
}

// Scheduler is the slice of the poller the flows drive
type Scheduler interface {
	SetFilter(filter backend.Category)
	ForceStatus()
	ForceDetections()
}

// Controller is the single write surface over the view state. The web
// layer calls it; it never bypasses the store or the scheduler.
type Controller struct {
	client Backend
	store  *state.Store
	sched  Scheduler
}

// NewController wires the mutation flows
func NewController(client Backend, store *state.Store, sched Scheduler) *Controller {
	return &Controller{
		client: client,
		store:  store,
		sched:  sched,
	}
}

// Snapshot returns the current view state
func (c *Controller) Snapshot() state.ViewState {
	return c.store.Snapshot()
}

// SetFilter switches the gallery to a category and kicks off exactly
// one immediate poll for it
func (c *Controller) SetFilter(filter backend.Category) error {
	if !filter.Valid() {
		return fmt.Errorf("invalid category %q", filter)
	}
	c.store.SetFilter(filter)
	c.sched.SetFilter(filter)
	return nil
}

// Select opens the detail view on a detection from the current list
func (c *Controller) Select(category backend.Category, id string) error {
	if !c.store.Select(category, id) {
		return fmt.Errorf("detection %s/%s is not in the current list", category, id)
	}
	return nil
}

// ClearSelection closes the detail view
func (c *Controller) ClearSelection() {
	c.store.ClearSelection()
}

// Toggle flips backend monitoring. On success a status refresh is
// forced so the dashboard shows the new active state without waiting
// up to a full poll period. On failure the view state is untouched and
// the error goes back to the caller.
func (c *Controller) Toggle(ctx context.Context) (*backend.ToggleResult, error) {
	result, err := c.client.Toggle(ctx)
	if err != nil {
		log.Printf("⚠️ Toggle failed: %v", err)
		return nil, err
	}

	log.Printf("🔄 Monitoring toggled: %s", result.Message)
	c.sched.ForceStatus()
	return result, nil
}

// Delete removes a detection. The selection is reconciled immediately
// so the detail view never shows the deleted event, then a detections
// refresh is forced for the current filter. On failure the view state
// is untouched.
func (c *Controller) Delete(ctx context.Context, category backend.Category, id string) error {
	if err := c.client.DeleteDetection(ctx, category, id); err != nil {
		log.Printf("⚠️ Delete %s/%s failed: %v", category, id, err)
		return err
	}

	log.Printf("🗑️ Deleted detection %s/%s", category, id)
	c.store.DropSelected(category, id)
	c.sched.ForceDetections()
	return nil
}

// BackendConfig fetches the backend's settings bag
func (c *Controller) BackendConfig(ctx context.Context) (backend.Config, error) {
	return c.client.GetConfig(ctx)
}

// UpdateBackendConfig sends a partial settings patch to the backend
func (c *Controller) UpdateBackendConfig(ctx context.Context, patch backend.Config) error {
	if len(patch) == 0 {
		return fmt.Errorf("empty config patch")
	}
	return c.client.UpdateConfig(ctx, patch)
}

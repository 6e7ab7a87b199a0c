package state

import (
	"errors"
	"testing"

	"github.com/petdoor/watchbox/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection(category backend.Category, id string) backend.Detection {
	return backend.Detection{
		ID:        id,
		Category:  category,
		Timestamp: "2026-08-30T12:00:00",
		Filename:  id + ".jpg",
	}
}

func TestStore_InitialState(t *testing.T) {
	store := NewStore(nil)
	vs := store.Snapshot()

	assert.Equal(t, backend.CategoryAll, vs.Filter)
	assert.Empty(t, vs.Detections)
	assert.Nil(t, vs.Selected)
	assert.True(t, vs.Loading)
	assert.Empty(t, vs.Error)
	assert.Nil(t, vs.Status)
}

func TestStore_ApplyDetections_ReplacesList(t *testing.T) {
	store := NewStore(nil)

	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      7,
	})

	vs := store.Snapshot()
	assert.Len(t, vs.Detections, 1)
	assert.Equal(t, 7, vs.Total)
	assert.False(t, vs.Loading)
	assert.Empty(t, vs.Error)
}

func TestStore_ApplyDetections_KeepsSelectionStillPresent(t *testing.T) {
	store := NewStore(nil)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{
			detection(backend.CategoryCats, "a"),
			detection(backend.CategoryDogs, "b"),
		},
		Total: 2,
	})
	require.True(t, store.Select(backend.CategoryCats, "a"))

	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      1,
	})

	vs := store.Snapshot()
	require.NotNil(t, vs.Selected)
	assert.Equal(t, "a", vs.Selected.ID)
}

func TestStore_ApplyDetections_ClearsVanishedSelection(t *testing.T) {
	store := NewStore(nil)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      1,
	})
	require.True(t, store.Select(backend.CategoryCats, "a"))

	// Refresh no longer contains the selected detection
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "z")},
		Total:      1,
	})

	assert.Nil(t, store.Snapshot().Selected)
}

func TestStore_SelectionMatchesOnCategoryAndID(t *testing.T) {
	store := NewStore(nil)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      1,
	})
	require.True(t, store.Select(backend.CategoryCats, "a"))

	// Same id under a different category is a different event
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryDogs, "a")},
		Total:      1,
	})

	assert.Nil(t, store.Snapshot().Selected)
}

func TestStore_FailDetections_DropsStaleList(t *testing.T) {
	store := NewStore(nil)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      1,
	})
	require.True(t, store.Select(backend.CategoryCats, "a"))

	store.FailDetections(errors.New("backend unreachable"))

	vs := store.Snapshot()
	assert.Empty(t, vs.Detections)
	assert.Zero(t, vs.Total)
	assert.Nil(t, vs.Selected)
	assert.False(t, vs.Loading)
	assert.Equal(t, "backend unreachable", vs.Error)
}

func TestStore_SetFilter_EntersLoading(t *testing.T) {
	store := NewStore(nil)
	store.FailDetections(errors.New("boom"))

	store.SetFilter(backend.CategoryDogs)

	vs := store.Snapshot()
	assert.Equal(t, backend.CategoryDogs, vs.Filter)
	assert.True(t, vs.Loading)
	assert.Empty(t, vs.Error)
}

func TestStore_Select_NotInList(t *testing.T) {
	store := NewStore(nil)
	assert.False(t, store.Select(backend.CategoryCats, "missing"))
	assert.Nil(t, store.Snapshot().Selected)
}

func TestStore_DropSelected(t *testing.T) {
	store := NewStore(nil)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{
			detection(backend.CategoryCats, "a"),
			detection(backend.CategoryCats, "b"),
		},
		Total: 2,
	})
	require.True(t, store.Select(backend.CategoryCats, "a"))

	// Deleting a different event leaves the selection alone
	store.DropSelected(backend.CategoryCats, "b")
	require.NotNil(t, store.Snapshot().Selected)

	// Deleting the selected one clears it immediately, before any
	// confirming refresh has landed
	store.DropSelected(backend.CategoryCats, "a")
	assert.Nil(t, store.Snapshot().Selected)
}

func TestStore_ApplyStatus(t *testing.T) {
	store := NewStore(nil)
	store.ApplyStatus(&backend.SystemStatus{Active: true, FPS: 2})

	vs := store.Snapshot()
	require.NotNil(t, vs.Status)
	assert.True(t, vs.Status.Active)
}

func TestStore_NotifiesOnEveryTransition(t *testing.T) {
	var snapshots []ViewState
	store := NewStore(func(vs ViewState) {
		snapshots = append(snapshots, vs)
	})

	store.SetFilter(backend.CategoryCats)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      1,
	})
	store.ApplyStatus(&backend.SystemStatus{Active: true})

	require.Len(t, snapshots, 3)
	assert.Equal(t, backend.CategoryCats, snapshots[0].Filter)
	assert.Len(t, snapshots[1].Detections, 1)
	assert.NotNil(t, snapshots[2].Status)
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	store := NewStore(nil)
	store.ApplyDetections(&backend.DetectionList{
		Detections: []backend.Detection{detection(backend.CategoryCats, "a")},
		Total:      1,
	})

	vs := store.Snapshot()
	vs.Detections[0].ID = "mutated"

	assert.Equal(t, "a", store.Snapshot().Detections[0].ID)
}

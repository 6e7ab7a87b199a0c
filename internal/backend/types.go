package backend

import "math"

// Category filters detections by the kind of pet the backend classified
type Category string

const (
	CategoryAll     Category = "all"
	CategoryCats    Category = "cats"
	CategoryDogs    Category = "dogs"
	CategoryUnknown Category = "unknown"
)

// Valid reports whether the category is one the backend understands
func (c Category) Valid() bool {
	switch c {
	case CategoryAll, CategoryCats, CategoryDogs, CategoryUnknown:
		return true
	}
	return false
}

// ItemCategory is like Valid but excludes "all", which is only a
// filter value and never a category a detection can belong to
func (c Category) ItemCategory() bool {
	return c.Valid() && c != CategoryAll
}

// SystemStatus is the backend's /api/status snapshot
type SystemStatus struct {
	Active         bool    `json:"active"`
	StorageUsedGB  float64 `json:"storage_used_gb"`
	StorageLimitGB float64 `json:"storage_limit_gb"`
	FPS            float64 `json:"fps"`
	LastDetection  float64 `json:"last_detection"` // unix seconds, 0 if never
	RunningOnPi    bool    `json:"running_on_pi"`
}

// StoragePercent returns storage usage as a rounded percentage.
// A zero or negative limit yields 0 rather than NaN.
func (s SystemStatus) StoragePercent() int {
	if s.StorageLimitGB <= 0 {
		return 0
	}
	return int(math.Round(s.StorageUsedGB / s.StorageLimitGB * 100))
}

// PetDetection is a single classified pet within a captured frame.
// BBox is four numbers in source-image pixel space, passed through
// untouched for display.
type PetDetection struct {
	Type       string    `json:"type"` // "cat" or "dog"
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// Detection is one captured event. Identity is (Category, ID); the
// backend never moves an event between categories, so the pair stays
// valid for the event's lifetime.
type Detection struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"` // ISO-8601
	Category   Category       `json:"category"`
	Detections []PetDetection `json:"detections"`
	Filename   string         `json:"filename"`
	ImageURL   string         `json:"image_url"`
}

// Same reports whether d and other refer to the same backend event
func (d Detection) Same(other Detection) bool {
	return d.Category == other.Category && d.ID == other.ID
}

// DetectionList is the backend's /api/detections response. Total is
// the count before the limit cap was applied.
type DetectionList struct {
	Detections []Detection `json:"detections"`
	Total      int         `json:"total"`
}

// ToggleResult is the backend's /api/toggle response
type ToggleResult struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

// Config is the backend's tunable settings. The viewer treats it as an
// opaque bag: it renders whatever keys come back and patches only the
// keys the user changed.
type Config map[string]interface{}

package model

import (
	"fmt"
	"time"
)

// ConflictResolution is the resolution vocabulary of a conflict. The zero
// value means unresolved.
type ConflictResolution string

const (
	ResolutionUnset  ConflictResolution = ""
	ResolutionLocal  ConflictResolution = "local"
	ResolutionRemote ConflictResolution = "remote"
	ResolutionMerge  ConflictResolution = "merge"
	ResolutionManual ConflictResolution = "manual"
)

// ParseConflictResolution validates a resolution coming from a caller.
func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch r := ConflictResolution(s); r {
	case ResolutionLocal, ResolutionRemote, ResolutionMerge, ResolutionManual:
		return r, nil
	}
	return ResolutionUnset, fmt.Errorf("invalid conflict resolution %q", s)
}

// CalendarConflict records concurrent local and remote edits of the same
// canonical event, left for a person or policy to resolve.
type CalendarConflict struct {
	ID             string             `json:"id"`
	EventID        string             `json:"eventId"`
	UserID         string             `json:"userId"`
	ConnectionID   string             `json:"connectionId,omitempty"`
	LocalVersion   map[string]any     `json:"localVersion"`
	RemoteVersion  map[string]any     `json:"remoteVersion"`
	ConflictFields []string           `json:"conflictFields"`
	DetectedAt     time.Time          `json:"detectedAt"`
	Resolution     ConflictResolution `json:"resolution,omitempty"`
	ResolvedAt     *time.Time         `json:"resolvedAt,omitempty"`
	ResolvedBy     string             `json:"resolvedBy,omitempty"`
}

// Resolved reports whether a resolution was recorded.
func (c *CalendarConflict) Resolved() bool {
	return c.Resolution != ResolutionUnset
}

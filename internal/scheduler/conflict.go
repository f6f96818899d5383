// Package scheduler detects overlapping class slots.
package scheduler

import (
	"sort"
	"time"
)

// Slot is a class occupying a trainer for a time range.
type Slot struct {
	ID        string
	TrainerID string
	Start     time.Time
	End       time.Time
}

// ConflictType describes the type of conflict detected between slots.
type ConflictType string

const (
	// ConflictTypeTrainer indicates a trainer is scheduled for two classes at once.
	ConflictTypeTrainer ConflictType = "trainer"
)

// Conflict details an overlapping slot that callers can present to users.
type Conflict struct {
	WithSlotID string
	Type       ConflictType
	TrainerID  string
}

// DetectConflicts identifies slots in existing that share the candidate's
// trainer and overlap its time range. Ranges are half-open, so back-to-back
// classes do not conflict. The candidate itself is skipped by ID. Results are
// ordered by start time.
func DetectConflicts(existing []Slot, candidate Slot) []Conflict {
	if candidate.TrainerID == "" || !candidate.End.After(candidate.Start) {
		return nil
	}

	overlapping := make([]Slot, 0)
	for _, slot := range existing {
		if slot.ID == candidate.ID || slot.TrainerID != candidate.TrainerID {
			continue
		}
		if slot.Start.Before(candidate.End) && candidate.Start.Before(slot.End) {
			overlapping = append(overlapping, slot)
		}
	}

	sort.SliceStable(overlapping, func(i, j int) bool {
		if overlapping[i].Start.Equal(overlapping[j].Start) {
			return overlapping[i].ID < overlapping[j].ID
		}
		return overlapping[i].Start.Before(overlapping[j].Start)
	})

	conflicts := make([]Conflict, 0, len(overlapping))
	for _, slot := range overlapping {
		conflicts = append(conflicts, Conflict{
			WithSlotID: slot.ID,
			Type:       ConflictTypeTrainer,
			TrainerID:  slot.TrainerID,
		})
	}
	return conflicts
}

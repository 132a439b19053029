package sla

import (
	"sort"
	"time"

	"github.com/deskops/helpdesk-sla/internal/domain"
)

// FrozenDuration sums the wall-clock time a ticket spent in excluded stages.
// It is always recomputed from the full stage history because upstream
// corrections may rewrite that history. An interval still open at now is
// counted up to now.
func FrozenDuration(changes []domain.StageChange, excluded []string, now time.Time) time.Duration {
	if len(changes) == 0 || len(excluded) == 0 {
		return 0
	}
	frozenStages := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		frozenStages[id] = struct{}{}
	}

	ordered := make([]domain.StageChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChangedAt.Before(ordered[j].ChangedAt)
	})

	var (
		total       time.Duration
		inFrozen    bool
		frozenSince time.Time
	)
	for _, change := range ordered {
		_, entersFrozen := frozenStages[change.NewStageID]
		switch {
		case entersFrozen && !inFrozen:
			inFrozen = true
			frozenSince = change.ChangedAt
		case !entersFrozen && inFrozen:
			total += change.ChangedAt.Sub(frozenSince)
			inFrozen = false
		}
	}
	if inFrozen && now.After(frozenSince) {
		total += now.Sub(frozenSince)
	}
	if total < 0 {
		return 0
	}
	return total
}

// EffectiveHours is the working-hours budget left once frozen time is taken
// off the nominal SLA duration. It may be zero or negative.
func EffectiveHours(nominal float64, frozen time.Duration) float64 {
	return nominal - frozen.Hours()
}

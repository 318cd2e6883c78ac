package service

import (
	"sort"

	"github.com/limbo/cadence/pkg/entity"
)

// findConflicts reports every event whose effective interval shares an open
// sub-interval of positive length with the candidate. Floating events (no
// start, no end) never conflict. Pure and deterministic: results are ordered
// by overlap start, then event id.
func findConflicts(candidate entity.Interval, events []*entity.Event) []entity.Overlap {
	if !candidate.Valid() {
		return nil
	}
	overlaps := make([]entity.Overlap, 0)
	for _, event := range events {
		iv, ok := event.EffectiveInterval()
		if !ok || !iv.Valid() {
			continue
		}
		start := candidate.Start
		if iv.Start.After(start) {
			start = iv.Start
		}
		end := candidate.End
		if iv.End.Before(end) {
			end = iv.End
		}
		if end.After(start) {
			overlaps = append(overlaps, entity.Overlap{
				EventID: event.ID,
				Title:   event.Title,
				Window:  entity.Interval{Start: start, End: end},
			})
		}
	}
	sort.Slice(overlaps, func(i, j int) bool {
		if overlaps[i].Window.Start.Equal(overlaps[j].Window.Start) {
			return overlaps[i].EventID.String() < overlaps[j].EventID.String()
		}
		return overlaps[i].Window.Start.Before(overlaps[j].Window.Start)
	})
	return overlaps
}

// hasScheduleOverlap reports whether any overlap hits a schedule-type event.
// Used to refuse silent double-booking of two fixed schedules.
func hasScheduleOverlap(overlaps []entity.Overlap, events []*entity.Event) bool {
	types := make(map[string]entity.EventType, len(events))
	for _, e := range events {
		types[e.ID.String()] = e.EventType
	}
	for _, o := range overlaps {
		if types[o.EventID.String()] == entity.EventSchedule {
			return true
		}
	}
	return false
}

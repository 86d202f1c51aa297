package merge

import (
	"sort"
	"time"

	"github.com/travigo/departureboard/pkg/ctdf"
)

const DefaultTolerance = 2 * time.Minute

// Overlay applies live departures onto the scheduled ones for the same stop.
// A live record is matched to a scheduled departure by trip id, otherwise by
// normalised route with its timetabled time within tolerance of the scheduled
// time. Each live record is used at most once. The returned records are
// copies, the inputs are not modified.
func (n *Normaliser) Overlay(scheduled []*ctdf.DepartureBoard, live []*ctdf.DepartureBoard, tolerance time.Duration) []*ctdf.DepartureBoard {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	used := make([]bool, len(live))
	liveByTrip := map[string]int{}
	for i, record := range live {
		if record.TripID == "" {
			continue
		}
		if _, exists := liveByTrip[record.TripID]; !exists {
			liveByTrip[record.TripID] = i
		}
	}

	merged := make([]*ctdf.DepartureBoard, 0, len(scheduled))
	matches := make([]int, len(scheduled))

	// Trip id matches take priority over any route and time match
	for i, departure := range scheduled {
		matches[i] = -1
		if index, exists := liveByTrip[departure.TripID]; exists && departure.TripID != "" && !used[index] {
			matches[i] = index
			used[index] = true
		}
	}

	// Closest pairs first so a live record goes to the departure it fits best
	for _, candidate := range n.routeCandidates(scheduled, matches, live, used, tolerance) {
		if matches[candidate.scheduled] != -1 || used[candidate.live] {
			continue
		}
		matches[candidate.scheduled] = candidate.live
		used[candidate.live] = true
	}

	for i, departure := range scheduled {
		record := *departure
		if matches[i] != -1 {
			applyLive(&record, live[matches[i]])
		}
		merged = append(merged, &record)
	}

	ctdf.SortDepartureBoard(merged)

	return merged
}

// Overlay with the default normaliser
func Overlay(scheduled []*ctdf.DepartureBoard, live []*ctdf.DepartureBoard, tolerance time.Duration) []*ctdf.DepartureBoard {
	return defaultNormaliser.Overlay(scheduled, live, tolerance)
}

type routeCandidate struct {
	scheduled int
	live      int
	offset    time.Duration
}

func (n *Normaliser) routeCandidates(scheduled []*ctdf.DepartureBoard, matches []int, live []*ctdf.DepartureBoard, used []bool, tolerance time.Duration) []routeCandidate {
	var candidates []routeCandidate

	for i, departure := range scheduled {
		if matches[i] != -1 {
			continue
		}

		routeKey := n.Normalise(departure.RouteLabel)
		routeIDKey := n.Normalise(departure.RouteID)
		scheduledTime := departure.ScheduledTime
		if scheduledTime.IsZero() {
			scheduledTime = departure.Time
		}

		for j, record := range live {
			if used[j] {
				continue
			}

			liveKey := n.Normalise(record.RouteLabel)
			if liveKey == "" || (liveKey != routeKey && liveKey != routeIDKey) {
				continue
			}

			aimed := record.ScheduledTime
			if aimed.IsZero() {
				aimed = record.Time
			}

			offset := aimed.Sub(scheduledTime)
			if offset < 0 {
				offset = -offset
			}
			if offset <= tolerance {
				candidates = append(candidates, routeCandidate{scheduled: i, live: j, offset: offset})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].offset < candidates[b].offset
	})

	return candidates
}

func applyLive(record *ctdf.DepartureBoard, live *ctdf.DepartureBoard) {
	if record.ScheduledTime.IsZero() {
		record.ScheduledTime = record.Time
	}
	if !live.Time.IsZero() {
		record.Time = live.Time
	}

	record.IsLive = live.IsLive
	if live.IsLive {
		record.Type = ctdf.DepartureBoardRecordTypeRealtimeTracked
	}
	if record.Destination == "" {
		record.Destination = live.Destination
	}
}

package timetable

import (
	"sort"
	"strings"

	"github.com/travigo/departureboard/pkg/gtfs"
)

// FindStopsByNameSubstring matches stops whose name contains query, ignoring
// case. Results are ordered by name then id. A limit of zero or below means
// no limit and a blank query matches nothing.
func (s *Snapshot) FindStopsByNameSubstring(query string, limit int) []*gtfs.Stop {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var stops []*gtfs.Stop
	for _, entry := range s.stopNames {
		if !strings.Contains(entry.lower, query) {
			continue
		}

		stops = append(stops, entry.stop)
		if limit > 0 && len(stops) >= limit {
			break
		}
	}

	return stops
}

// FindRoutesByNormalizedID finds routes by id or short name after
// normalisation. Exact key matches win; when there are none, keys containing
// the query are used instead.
func (s *Snapshot) FindRoutesByNormalizedID(query string, limit int) []*gtfs.Route {
	key := s.normaliser.Normalise(query)
	if key == "" {
		return nil
	}

	routes := s.routeKeys[key]
	if len(routes) == 0 {
		seen := map[string]bool{}
		for candidate, candidateRoutes := range s.routeKeys {
			if !strings.Contains(candidate, key) {
				continue
			}
			for _, route := range candidateRoutes {
				if !seen[route.ID] {
					seen[route.ID] = true
					routes = append(routes, route)
				}
			}
		}
		sortRoutes(routes)
	}

	if limit > 0 && len(routes) > limit {
		routes = routes[:limit]
	}

	return append([]*gtfs.Route(nil), routes...)
}

// RouteKeys lists every normalised route key in the snapshot
func (s *Snapshot) RouteKeys() []string {
	keys := make([]string, 0, len(s.routeKeys))
	for key := range s.routeKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

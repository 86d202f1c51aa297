package timetable

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"

	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/stats"
)

// ReadinessReport describes the outcome of a load and what is being served
type ReadinessReport struct {
	Ready         bool
	Generation    string
	LoadedAt      time.Time
	MissingTables []string
	SkippedRows   map[string]int
	Counts        map[string]int
	Error         string `json:",omitempty"`

	// Generation of the snapshot queries are answered from after the reload
	Serving string
}

// Store holds the snapshot queries are answered from. Reloads build a new
// snapshot off to the side and swap it in whole, a failed reload leaves the
// previous snapshot in place.
type Store struct {
	current atomic.Pointer[Snapshot]
	reload  sync.Mutex
	options []Option
}

func NewStore(opts ...Option) *Store {
	store := &Store{options: opts}

	o := newOptions(opts)
	store.current.Store(emptySnapshot(o.location, o.normaliser))

	return store
}

func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload loads source and publishes it. Concurrent reloads run one at a time.
func (s *Store) Reload(ctx context.Context, source gtfs.Source) ReadinessReport {
	s.reload.Lock()
	defer s.reload.Unlock()

	snapshot, err := Load(ctx, source, s.options...)
	report := reportFor(snapshot)

	if err != nil {
		report.Ready = false
		report.Error = err.Error()

		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			report.MissingTables = loadErr.Missing
		}

		report.Serving = s.Current().Generation
		log.Error().Err(err).Str("serving", report.Serving).Msg("Timetable reload failed, keeping previous snapshot")
		stats.Reloads.WithLabelValues("failed").Inc()

		return report
	}

	s.current.Store(snapshot)
	report.Serving = snapshot.Generation

	stats.Reloads.WithLabelValues("success").Inc()
	for collection, count := range report.Counts {
		stats.SnapshotSize.WithLabelValues(collection).Set(float64(count))
	}
	for table, tableStats := range snapshot.Tables {
		stats.SkippedRows.WithLabelValues(table).Set(float64(tableStats.Skipped))
	}

	return report
}

// Status reports on the snapshot currently being served
func (s *Store) Status() ReadinessReport {
	report := reportFor(s.Current())
	report.Serving = report.Generation

	return report
}

func reportFor(snapshot *Snapshot) ReadinessReport {
	report := ReadinessReport{
		Ready:       snapshot.Ready,
		Generation:  snapshot.Generation,
		LoadedAt:    snapshot.LoadedAt,
		SkippedRows: map[string]int{},
		Counts:      snapshot.Counts(),
	}

	for table, tableStats := range snapshot.Tables {
		if tableStats.Skipped > 0 {
			report.SkippedRows[table] = tableStats.Skipped
		}
		if tableStats.Missing && slices.Contains(gtfs.RequiredTables, table) {
			report.MissingTables = append(report.MissingTables, table)
		}
	}
	sort.Strings(report.MissingTables)

	return report
}

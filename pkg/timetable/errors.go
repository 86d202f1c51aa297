package timetable

import (
	"fmt"
	"strings"
)

// LoadError reports required tables absent from the feed
type LoadError struct {
	Missing []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("timetable not ready, missing tables: %s", strings.Join(e.Missing, ", "))
}

package gtfs

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	TableStops         = "stops"
	TableRoutes        = "routes"
	TableTrips         = "trips"
	TableStopTimes     = "stop_times"
	TableCalendar      = "calendar"
	TableCalendarDates = "calendar_dates"
	TableShapes        = "shapes"
)

var RequiredTables = []string{TableStops, TableRoutes, TableTrips, TableStopTimes}
var OptionalTables = []string{TableCalendar, TableCalendarDates, TableShapes}

var ErrTableMissing = errors.New("gtfs table missing")

// Source gives access to the text tables of one GTFS feed by logical name
// (stops, stop_times, ...). A table that isn't present returns an error
// matching ErrTableMissing.
type Source interface {
	Open(table string) (io.ReadCloser, error)
}

func tableFileName(table string) string {
	return strings.ToLower(table) + ".txt"
}

func missingTable(table string) error {
	return fmt.Errorf("%w: %s", ErrTableMissing, tableFileName(table))
}

type ZipSource struct {
	files map[string]*zip.File
}

// NewZipSource indexes the archive entries by lower-cased base name. Entries
// nested more than one directory deep are ignored, as are entries under
// __MACOSX.
func NewZipSource(archive *zip.Reader) *ZipSource {
	source := &ZipSource{files: map[string]*zip.File{}}

	for _, file := range archive.File {
		if file.FileInfo().IsDir() {
			continue
		}

		name := strings.TrimPrefix(file.Name, "./")
		parts := strings.Split(name, "/")
		if len(parts) > 2 || strings.EqualFold(parts[0], "__MACOSX") {
			continue
		}

		key := strings.ToLower(path.Base(name))
		// Root level entries win over the same table inside a folder
		if existing, exists := source.files[key]; exists && !strings.Contains(existing.Name, "/") {
			continue
		}
		source.files[key] = file
	}

	return source
}

func NewZipSourceFromBytes(data []byte) (*ZipSource, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	return NewZipSource(archive), nil
}

func (s *ZipSource) Open(table string) (io.ReadCloser, error) {
	file, exists := s.files[tableFileName(table)]
	if !exists {
		return nil, missingTable(table)
	}

	return file.Open()
}

// DirSource reads tables from an extracted feed on disk
type DirSource struct {
	Path string
}

func NewDirSource(path string) *DirSource {
	return &DirSource{Path: path}
}

func (s *DirSource) Open(table string) (io.ReadCloser, error) {
	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read feed directory: %w", err)
	}

	wanted := tableFileName(table)
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), wanted) {
			return os.Open(filepath.Join(s.Path, entry.Name()))
		}
	}

	return nil, missingTable(table)
}

// MemorySource maps logical table names to their file contents
type MemorySource map[string]string

func (s MemorySource) Open(table string) (io.ReadCloser, error) {
	for name, contents := range s {
		if strings.EqualFold(strings.TrimSuffix(name, ".txt"), table) {
			return io.NopCloser(strings.NewReader(contents)), nil
		}
	}

	return nil, missingTable(table)
}

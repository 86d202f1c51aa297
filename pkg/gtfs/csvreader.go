package gtfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lenientReader feeds gocsv from an encoding/csv reader that tolerates the
// quirks found in real feeds. Lines with a different field count are padded or
// truncated to the header width and lines the csv reader can't parse at all
// are dropped and counted.
type lenientReader struct {
	csv     *csv.Reader
	pending []string
	width   int

	Malformed int
}

func newLenientReader(in io.Reader) *lenientReader {
	buffered := bufio.NewReader(in)
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		buffered.Discard(len(utf8BOM))
	}

	r := csv.NewReader(buffered)
	// Allow us to ignore those naughty records that have missing columns
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	return &lenientReader{csv: r}
}

// readHeader consumes the header row, returning io.EOF for an empty table
func (r *lenientReader) readHeader() ([]string, error) {
	header, err := r.next()
	if err != nil {
		return nil, err
	}

	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	r.width = len(header)
	r.pending = header

	return header, nil
}

func (r *lenientReader) next() ([]string, error) {
	for {
		record, err := r.csv.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.Malformed++
				log.Debug().Int("line", parseErr.Line).Err(parseErr.Err).Msg("Skipping malformed csv line")
				continue
			}
			return nil, err
		}

		blank := true
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
			if record[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}

		return record, nil
	}
}

func (r *lenientReader) Read() ([]string, error) {
	if r.pending != nil {
		header := r.pending
		r.pending = nil
		return header, nil
	}

	record, err := r.next()
	if err != nil {
		return nil, err
	}

	switch {
	case len(record) > r.width:
		record = record[:r.width]
	case len(record) < r.width:
		record = append(record, make([]string, r.width-len(record))...)
	}

	return record, nil
}

func (r *lenientReader) ReadAll() ([][]string, error) {
	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// TableStats counts what happened to the rows of one table
type TableStats struct {
	Table   string
	Rows    int
	Skipped int
	Missing bool
}

// ReadTable decodes every row of table into T and hands it to handle. Rows
// the csv reader can't split, and rows handle rejects with an error, are
// skipped and counted. A table containing nothing, not even a header, is
// empty rather than missing.
func ReadTable[T any](ctx context.Context, source Source, table string, handle func(*T) error) (TableStats, error) {
	stats := TableStats{Table: table}

	file, err := source.Open(table)
	if err != nil {
		if errors.Is(err, ErrTableMissing) {
			stats.Missing = true
		}
		return stats, err
	}
	defer file.Close()

	reader := newLenientReader(file)
	if _, err := reader.readHeader(); err != nil {
		if err == io.EOF {
			return stats, nil
		}
		return stats, fmt.Errorf("read %s header: %w", tableFileName(table), err)
	}

	err = gocsv.UnmarshalDecoderToCallback(gocsv.NewSimpleDecoderFromCSVReader(reader), func(row T) {
		if ctx.Err() != nil {
			return
		}

		if err := handle(&row); err != nil {
			stats.Skipped++
			log.Debug().Str("table", table).Err(err).Msg("Skipping invalid row")
			return
		}
		stats.Rows++
	})
	stats.Skipped += reader.Malformed

	if err != nil {
		return stats, fmt.Errorf("parse %s: %w", tableFileName(table), err)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	return stats, nil
}

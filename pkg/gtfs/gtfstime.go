package gtfs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidTime = errors.New("invalid gtfs time")

// ParseTime converts a GTFS H:MM:SS or HH:MM:SS value into seconds since the
// start of the service day. Hours past 23 are valid and describe trips running
// after midnight, so 25:10:00 is 90600.
func ParseTime(value string) (int, error) {
	value = strings.TrimSpace(value)

	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	var fields [3]int
	for i, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
		}

		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
		}
		fields[i] = n
	}

	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

// FormatTime is the inverse of ParseTime
func FormatTime(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

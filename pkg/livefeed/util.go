package livefeed

import (
	"time"

	"github.com/travigo/departureboard/pkg/siri_vm"
)

func parseOptionalTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return siri_vm.ParseTime(value)
}

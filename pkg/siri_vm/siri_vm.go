package siri_vm

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const XSDDateTimeFormat = "2006-01-02T15:04:05-07:00"

type SiriVM struct {
	XMLName xml.Name `xml:"Siri" json:"-"`

	ServiceDelivery struct {
		ResponseTimestamp string
		ProducerRef       string

		VehicleMonitoringDelivery OneOrMany[VehicleMonitoringDelivery]
	}
}

type VehicleMonitoringDelivery struct {
	ResponseTimestamp     string
	RequestMessageRef     string
	ValidUntil            string
	ShortestPossibleCycle string

	VehicleActivity OneOrMany[*VehicleActivity]
}

// Activities flattens the vehicle activities of every delivery
func (s *SiriVM) Activities() []*VehicleActivity {
	var activities []*VehicleActivity
	for _, delivery := range s.ServiceDelivery.VehicleMonitoringDelivery {
		for _, activity := range delivery.VehicleActivity {
			if activity != nil {
				activities = append(activities, activity)
			}
		}
	}

	return activities
}

// OneOrMany decodes repeated XML elements, and JSON values that are either a
// single object or an array of them, into a slice
type OneOrMany[T any] []T

func (o *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*o = nil
		return nil
	}

	var items []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
	} else {
		items = []json.RawMessage{data}
	}

	// Items that don't decode are dropped so one bad record can't take the
	// rest of the document with it
	decoded := make([]T, 0, len(items))
	for _, item := range items {
		var value T
		if err := json.Unmarshal(item, &value); err != nil {
			log.Debug().Err(err).Msg("Skipping malformed Siri-VM json item")
			continue
		}
		decoded = append(decoded, value)
	}
	*o = decoded

	return nil
}

// ParseTime reads the xsd:dateTime values used throughout SIRI, with or
// without fractional seconds. Values without an offset are taken as UTC.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}

	for _, layout := range []string{time.RFC3339Nano, XSDDateTimeFormat, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised datetime %q", value)
}

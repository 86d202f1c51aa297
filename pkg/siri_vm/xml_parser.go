package siri_vm

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

type ParseStats struct {
	ResponseTimestamp string
	Retrieved         int
	Malformed         int
}

// ParseXML streams the document and hands every VehicleActivity to each as
// soon as it is decoded. An activity that fails to decode is counted and
// skipped, only a broken document stops the parse.
func ParseXML(reader io.Reader, each func(*VehicleActivity)) (ParseStats, error) {
	var stats ParseStats

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	sawRoot := false

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return stats, fmt.Errorf("decode siri-vm: %w", err)
		}

		switch ty := tok.(type) {
		case xml.StartElement:
			if !sawRoot {
				if ty.Name.Local != "Siri" {
					return stats, fmt.Errorf("decode siri-vm: unexpected root element %s", ty.Name.Local)
				}
				sawRoot = true
			}

			switch {
			case ty.Name.Local == "VehicleActivity":
				var vehicleActivity VehicleActivity

				if err = d.DecodeElement(&vehicleActivity, &ty); err != nil {
					var syntaxErr *xml.SyntaxError
					if errors.As(err, &syntaxErr) {
						return stats, fmt.Errorf("decode siri-vm: %w", err)
					}
					stats.Malformed++
					log.Debug().Err(err).Msg("Skipping malformed VehicleActivity")
				} else {
					stats.Retrieved++
					each(&vehicleActivity)
				}
			case ty.Name.Local == "ResponseTimestamp" && stats.ResponseTimestamp == "":
				var timestamp string
				if err = d.DecodeElement(&timestamp, &ty); err == nil {
					stats.ResponseTimestamp = timestamp
				}
			}
		}
	}

	if !sawRoot {
		return stats, errors.New("decode siri-vm: empty document")
	}

	log.Debug().Int("retrieved", stats.Retrieved).Int("malformed", stats.Malformed).Msg("Parsed Siri-VM response")

	return stats, nil
}

// ParseJSON reads the JSON rendering of a SIRI-VM response, an object with a
// top level Siri key
func ParseJSON(data []byte) (*SiriVM, error) {
	var envelope struct {
		Siri *SiriVM
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || envelope.Siri == nil {
			return nil, fmt.Errorf("decode siri-vm json: %w", err)
		}
		// Values of the wrong type are left empty and the rest decodes
		log.Debug().Err(err).Msg("Siri-VM json contains values of unexpected type")
	}
	if envelope.Siri == nil {
		return nil, errors.New("decode siri-vm json: missing Siri envelope")
	}

	return envelope.Siri, nil
}

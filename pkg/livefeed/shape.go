package livefeed

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type Shape string

const (
	ShapeUnknown      Shape = "unknown"
	ShapeSIRIXML      Shape = "siri-xml"
	ShapeSIRIJSON     Shape = "siri-json"
	ShapeJSONList     Shape = "json-list"
	ShapeGTFSRealtime Shape = "gtfs-rt"
)

// DetectShape works out which of the supported payload layouts body is in.
// The content type is only trusted for protobuf, everything else is decided
// by the payload itself.
func DetectShape(contentType string, body []byte) Shape {
	contentType = strings.ToLower(contentType)
	if strings.Contains(contentType, "protobuf") {
		return ShapeGTFSRealtime
	}

	// A FeedMessage starts with its header field, tag 0x0a, which is also a
	// newline so protobuf has to be ruled out before trimming whitespace
	if len(body) > 0 && body[0] == 0x0a && isFeedMessage(body) {
		return ShapeGTFSRealtime
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return ShapeUnknown
	}

	switch trimmed[0] {
	case '<':
		return ShapeSIRIXML
	case '[':
		return ShapeJSONList
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			break
		}
		for key := range object {
			if strings.EqualFold(key, "siri") {
				return ShapeSIRIJSON
			}
		}
		return ShapeJSONList
	}

	if isFeedMessage(body) {
		return ShapeGTFSRealtime
	}

	return ShapeUnknown
}

func isFeedMessage(body []byte) bool {
	var feed gtfs.FeedMessage
	return proto.Unmarshal(body, &feed) == nil && feed.GetHeader() != nil
}

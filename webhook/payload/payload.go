package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/marcelsud/webhook-gateway/webhook/signature"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// Wildcard matches every event type
const Wildcard = "*"

var (
	idFields        = []string{"id", "event_id", "webhook_id"}
	typeFields      = []string{"type", "event_type", "event"}
	timestampFields = []string{"timestamp", "created", "created_at"}
)

/* Metadata holds the event identity fields found in a provider payload
 * Zero values mean the field was absent or unusable
 */
type Metadata struct {
	ID        string
	Type      string
	Timestamp int64
}

// HasID reports whether an event id was found
func (m Metadata) HasID() bool {
	return m.ID != ""
}

// Extract reads id, type and timestamp from a JSON object payload.
// Anything that is not a JSON object yields empty Metadata.
func Extract(body []byte) Metadata {
	fields, ok := decodeObject(body)
	if !ok {
		return Metadata{}
	}

	var meta Metadata
	meta.ID, _ = firstScalar(fields, idFields)
	meta.Type, _ = firstScalar(fields, typeFields)
	if raw, found := firstScalar(fields, timestampFields); found {
		meta.Timestamp, _ = signature.ParseTimestamp(raw)
	}

	return meta
}

// ExtractID returns the event id of a payload
func ExtractID(body []byte) (string, bool) {
	meta := Extract(body)
	return meta.ID, meta.ID != ""
}

// ExtractType returns the event type of a payload
func ExtractType(body []byte) (string, bool) {
	meta := Extract(body)
	return meta.Type, meta.Type != ""
}

// ExtractTimestamp returns the event timestamp of a payload
func ExtractTimestamp(body []byte) (int64, bool) {
	meta := Extract(body)
	return meta.Timestamp, meta.Timestamp != 0
}

// Field returns a top-level scalar field by name
func Field(body []byte, name string) (string, bool) {
	fields, ok := decodeObject(body)
	if !ok {
		return "", false
	}
	return firstScalar(fields, []string{name})
}

// MatchEventType checks an event type against a registration pattern.
// Supports exact matching, "*" and prefix matching ("user.*" matches "user.created").
func MatchEventType(pattern, eventType string) bool {
	if pattern == Wildcard || pattern == eventType {
		return true
	}

	prefix, ok := strings.CutSuffix(pattern, ".*")
	if !ok || prefix == "" {
		return false
	}
	return strings.HasPrefix(eventType, prefix+".")
}

// ValidateEventType validates an event type pattern
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if eventType == Wildcard {
		return nil
	}

	// Allow wildcard suffix for filtering
	eventType = strings.TrimSuffix(eventType, ".*")

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// firstScalar returns the first named field holding a non-empty string or number
func firstScalar(fields map[string]json.RawMessage, names []string) (string, bool) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
			continue
		}

		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&n); err == nil {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10), true
			}
			return n.String(), true
		}
	}
	return "", false
}

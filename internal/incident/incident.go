package incident

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusReported   Status = "reported"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// ParseStatus accepts the wire form and a few human spellings ("in progress").
func ParseStatus(raw string) (Status, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	switch Status(s) {
	case StatusReported, StatusInProgress, StatusResolved:
		return Status(s), true
	}
	return "", false
}

// Label renders the status the way the dashboards display it.
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Incident is owned by the backend; the client only reads it and asks for
// mutations.
type Incident struct {
	ID                       int64     `json:"id"`
	Description              string    `json:"description"`
	Location                 string    `json:"location"`
	Latitude                 *float64  `json:"latitude,omitempty"`
	Longitude                *float64  `json:"longitude,omitempty"`
	DepartmentClassification string    `json:"department_classification"`
	Status                   Status    `json:"status"`
	ImageURL                 *string   `json:"image_url,omitempty"`
	Timestamp                Timestamp `json:"timestamp"`
}

// Departments parses the comma-joined classification. Unknown tokens are
// skipped.
func (i Incident) Departments() DepartmentSet {
	return ParseDepartmentList(i.DepartmentClassification)
}

// HasCoordinates reports whether the incident can be placed on a map.
func (i Incident) HasCoordinates() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// Summary is the one-line description used in chat turns and terminal lists.
func (i Incident) Summary() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(i.Description))
	if loc := strings.TrimSpace(i.Location); loc != "" {
		b.WriteString(" at ")
		b.WriteString(loc)
	}
	if i.Status != "" {
		b.WriteString(" (")
		b.WriteString(i.Status.Label())
		b.WriteString(")")
	}
	return b.String()
}

// Timestamp accepts RFC 3339 and the zone-less isoformat() the backend
// emits. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// null or a non-string; keep the zero value
		t.Time = time.Time{}
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

package displayforce

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// SexMale is the sex code the API uses for men. Every other code is counted
// as female.
const SexMale = 1

// FlexString decodes a JSON string, number or boolean into its textual form.
// The API is not consistent about the type of identifiers and flags.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(data))
	return nil
}

// String returns the decoded text.
func (f FlexString) String() string {
	return string(f)
}

// FlexNumber decodes a JSON number or numeric string. Anything else is zero.
type FlexNumber float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s.String()), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = FlexNumber(v)
	return nil
}

func (n FlexNumber) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// Track is a single sighting of a visitor by one device.
type Track struct {
	ID       FlexString `json:"id"`
	Start    string     `json:"start"`
	End      string     `json:"end,omitempty"`
	DeviceID FlexString `json:"device_id"`
}

// AdditionalAttributes holds the optional attributes requested with
// additional_attributes. Only smile is interpreted; the rest is kept raw.
type AdditionalAttributes struct {
	Smile FlexString `json:"smile"`
}

// Visitor is one detected visitor occurrence as returned by the
// stats/visitor/list endpoint.
type Visitor struct {
	VisitorID            FlexString           `json:"visitor_id"`
	SessionID            FlexString           `json:"session_id"`
	ID                   FlexString           `json:"id"`
	Start                string               `json:"start"`
	End                  string               `json:"end,omitempty"`
	StoreName            FlexString           `json:"store_name"`
	Sex                  FlexNumber           `json:"sex"`
	Age                  FlexNumber           `json:"age"`
	Smile                FlexString           `json:"smile"`
	AdditionalAttributes AdditionalAttributes `json:"additional_attributes"`
	Devices              []FlexString         `json:"devices"`
	Tracks               []Track              `json:"tracks"`

	// Raw keeps the original JSON object for the visitor detail view.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the visitor and keeps a copy of the raw object.
func (v *Visitor) UnmarshalJSON(data []byte) error {
	type plain Visitor
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Visitor(p)
	v.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// IsMale reports whether the visitor was classified as male. Any sex code
// other than 1, including a missing or malformed one, is female.
func (v Visitor) IsMale() bool {
	return v.Sex == SexMale
}

// Gender returns "M" or "F".
func (v Visitor) Gender() string {
	if v.IsMale() {
		return "M"
	}
	return "F"
}

// AgeYears returns the estimated age, zero when unknown.
func (v Visitor) AgeYears() float64 {
	return float64(v.Age)
}

// Identifier returns the first non-empty of visitor_id, session_id, id and
// the first track id.
func (v Visitor) Identifier() string {
	candidates := []FlexString{v.VisitorID, v.SessionID, v.ID}
	if len(v.Tracks) > 0 {
		candidates = append(candidates, v.Tracks[0].ID)
	}
	for _, c := range candidates {
		if s := strings.TrimSpace(c.String()); s != "" {
			return s
		}
	}
	return ""
}

// RawTimestamp returns the top-level start, else the first track's start.
func (v Visitor) RawTimestamp() string {
	if s := strings.TrimSpace(v.Start); s != "" {
		return s
	}
	if len(v.Tracks) > 0 {
		return strings.TrimSpace(v.Tracks[0].Start)
	}
	return ""
}

// Timestamp returns the canonical detection time in UTC. ok is false when no
// timestamp is present or it cannot be parsed.
func (v Visitor) Timestamp() (time.Time, bool) {
	return ParseTimestamp(v.RawTimestamp())
}

// DeviceID returns the first track's device id, else the first entry of the
// device list.
func (v Visitor) DeviceID() string {
	if len(v.Tracks) > 0 {
		if id := strings.TrimSpace(v.Tracks[0].DeviceID.String()); id != "" {
			return id
		}
	}
	if len(v.Devices) > 0 {
		return strings.TrimSpace(v.Devices[0].String())
	}
	return ""
}

var smileFolder = cases.Fold()

// Smiled reports whether the smile attribute is "yes", checking the
// top-level field first and then additional_attributes.
func (v Visitor) Smiled() bool {
	raw := v.Smile.String()
	if strings.TrimSpace(raw) == "" {
		raw = v.AdditionalAttributes.Smile.String()
	}
	return smileFolder.String(strings.TrimSpace(raw)) == "yes"
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the API's ISO-8601 timestamps. Values without a zone
// are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

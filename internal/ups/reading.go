package ups

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Reading is one snapshot of device values. A field that was not configured
// or could not be read is absent from the map, never stored as "".
type Reading map[Field]string

// Get returns the value for f and whether it was observed.
func (r Reading) Get(f Field) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r[f]
	return v, ok
}

// Present reports whether f was observed with a non-empty value.
func (r Reading) Present(f Field) bool {
	v, ok := r.Get(f)
	return ok && strings.TrimSpace(v) != ""
}

// Fields returns the observed fields in canonical order.
func (r Reading) Fields() []Field {
	out := make([]Field, 0, len(r))
	for f := range r {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// State is the last persisted reading plus the time it was written.
//
// On disk it is one flat JSON object: every field name maps to its value and
// "last_update" holds an ISO-8601 timestamp.
type State struct {
	Reading    Reading
	LastUpdate time.Time

	// lastUpdateRaw keeps an unparsable last_update as found on disk.
	lastUpdateRaw string
}

const lastUpdateKey = "last_update"

// timestampLayouts are tried in order when reading last_update. The second and
// third accept naive local timestamps written by older deployments.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp as written by either process.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way both files store it.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// Empty reports whether nothing has been stored yet.
func (s State) Empty() bool {
	return len(s.Reading) == 0 && s.LastUpdate.IsZero() && s.lastUpdateRaw == ""
}

// LastUpdateText renders the stored timestamp with layout. When the stored
// value could not be parsed it is returned verbatim; ok is false when there is
// no timestamp at all.
func (s State) LastUpdateText(layout string) (string, bool) {
	if !s.LastUpdate.IsZero() {
		return s.LastUpdate.Format(layout), true
	}
	if s.lastUpdateRaw != "" {
		return s.lastUpdateRaw, true
	}
	return "", false
}

func (s State) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(s.Reading)+1)
	for f, v := range s.Reading {
		m[string(f)] = v
	}
	switch {
	case !s.LastUpdate.IsZero():
		m[lastUpdateKey] = FormatTimestamp(s.LastUpdate)
	case s.lastUpdateRaw != "":
		m[lastUpdateKey] = s.lastUpdateRaw
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the flat layout. Unknown keys are ignored and null
// values are treated as absent.
func (s *State) UnmarshalJSON(b []byte) error {
	var m map[string]*string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := State{Reading: Reading{}}
	for k, v := range m {
		if v == nil {
			continue
		}
		if k == lastUpdateKey {
			if t, ok := ParseTimestamp(*v); ok {
				out.LastUpdate = t
			} else {
				out.lastUpdateRaw = *v
			}
			continue
		}
		f := Field(k)
		if !f.Valid() {
			continue
		}
		out.Reading[f] = *v
	}
	*s = out
	return nil
}

// AllAbsent reports a total outage: none of the configured fields produced a
// value. An empty configuration is never an outage.
func AllAbsent(r Reading, configured []Field) bool {
	if len(configured) == 0 {
		return false
	}
	for _, f := range configured {
		if _, ok := r.Get(f); ok {
			return false
		}
	}
	return true
}

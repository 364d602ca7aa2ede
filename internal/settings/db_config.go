package settings

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot holds the in-memory copy of the settings table.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var current atomic.Pointer[snapshot]

func init() {
	current.Store(&snapshot{values: map[string]json.RawMessage{}})
}

// Store replaces the in-memory settings snapshot.
func Store(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		next[key] = append(json.RawMessage(nil), v...)
	}
	current.Store(&snapshot{updatedAt: updatedAt.UTC(), values: next})
}

// UpdatedAt returns the newest row timestamp of the loaded snapshot.
func UpdatedAt() time.Time {
	return current.Load().updatedAt
}

// Raw returns a copy of the raw JSON value stored for key.
func Raw(key string) (json.RawMessage, bool) {
	val, ok := current.Load().values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), val...), true
}

// Float returns the numeric setting for key, or def when missing or malformed.
// Values may be stored as JSON numbers or numeric strings.
func Float(key string, def float64) float64 {
	raw, ok := Raw(key)
	if !ok || len(raw) == 0 {
		return def
	}
	var n float64
	if errUnmarshal := json.Unmarshal(raw, &n); errUnmarshal == nil {
		return n
	}
	var s string
	if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal == nil {
		if parsed, errParse := strconv.ParseFloat(strings.TrimSpace(s), 64); errParse == nil {
			return parsed
		}
	}
	return def
}

// Int returns the integer setting for key, or def when missing, malformed or fractional.
func Int(key string, def int) int {
	f := Float(key, float64(def))
	if f != float64(int(f)) {
		return def
	}
	return int(f)
}

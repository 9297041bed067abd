package alerting

import (
	"math"
	"strconv"
	"time"
)

// MetricSnapshot is a point-in-time view of the monitored signals for one
// environment. Values are read-only after construction; booleans are encoded
// as 0/1. History is owned by the monitoring source, not persisted here.
type MetricSnapshot struct {
	CapturedAt time.Time
	values     map[string]float64
}

// NewSnapshot builds a snapshot from already-typed metric values.
func NewSnapshot(capturedAt time.Time, values map[string]float64) MetricSnapshot {
	copied := make(map[string]float64, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return MetricSnapshot{CapturedAt: capturedAt, values: copied}
}

// SnapshotFromRaw converts a loosely-typed metric map at the ingestion
// boundary. Non-numeric values are dropped rather than carried into the
// evaluator, so rule evaluation never has to type-cast.
func SnapshotFromRaw(capturedAt time.Time, raw map[string]interface{}) MetricSnapshot {
	values := make(map[string]float64, len(raw))
	for name, v := range raw {
		if f, ok := toFloat(v); ok {
			values[name] = f
		}
	}
	return MetricSnapshot{CapturedAt: capturedAt, values: values}
}

// Value returns the named metric and whether it is present.
func (s MetricSnapshot) Value(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Values returns a copy of all metric values.
func (s MetricSnapshot) Values() map[string]float64 {
	copied := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		copied[k] = v
	}
	return copied
}

// Len returns the number of metrics in the snapshot.
func (s MetricSnapshot) Len() int {
	return len(s.values)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

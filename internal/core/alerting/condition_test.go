package alerting

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func snapshot(values map[string]float64) MetricSnapshot {
	return NewSnapshot(time.Now(), values)
}

func TestComparisonEval(t *testing.T) {
	tests := []struct {
		name     string
		cond     Comparison
		values   map[string]float64
		expected bool
	}{
		{
			name:     "greater than fires",
			cond:     Comparison{Metric: "cpu", Operator: OpGreaterThan, Threshold: 90},
			values:   map[string]float64{"cpu": 95},
			expected: true,
		},
		{
			name:     "greater than at boundary does not fire",
			cond:     Comparison{Metric: "cpu", Operator: OpGreaterThan, Threshold: 90},
			values:   map[string]float64{"cpu": 90},
			expected: false,
		},
		{
			name:     "greater or equal at boundary fires",
			cond:     Comparison{Metric: "cpu", Operator: OpGreaterOrEqual, Threshold: 90},
			values:   map[string]float64{"cpu": 90},
			expected: true,
		},
		{
			name:     "less than fires",
			cond:     Comparison{Metric: "ple", Operator: OpLessThan, Threshold: 300},
			values:   map[string]float64{"ple": 120},
			expected: true,
		},
		{
			name:     "equal fires",
			cond:     Comparison{Metric: "errors", Operator: OpEqual, Threshold: 0},
			values:   map[string]float64{"errors": 0},
			expected: true,
		},
		{
			name:     "not equal fires",
			cond:     Comparison{Metric: "errors", Operator: OpNotEqual, Threshold: 0},
			values:   map[string]float64{"errors": 3},
			expected: true,
		},
		{
			name:     "missing metric never fires",
			cond:     Comparison{Metric: "cpu", Operator: OpGreaterThan, Threshold: 90},
			values:   map[string]float64{"memory": 95},
			expected: false,
		},
		{
			name:     "NaN value never fires",
			cond:     Comparison{Metric: "cpu", Operator: OpGreaterThan, Threshold: 90},
			values:   map[string]float64{"cpu": math.NaN()},
			expected: false,
		},
		{
			name:     "NaN value never fires even for not equal",
			cond:     Comparison{Metric: "cpu", Operator: OpNotEqual, Threshold: 90},
			values:   map[string]float64{"cpu": math.NaN()},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cond.Eval(snapshot(tt.values)))
		})
	}
}

func TestAndEval(t *testing.T) {
	and := &And{
		Left:  &Comparison{Metric: "cpu", Operator: OpGreaterOrEqual, Threshold: 90},
		Right: &Comparison{Metric: "blocking", Operator: OpGreaterOrEqual, Threshold: 2},
	}

	assert.True(t, and.Eval(snapshot(map[string]float64{"cpu": 92, "blocking": 4})))
	assert.False(t, and.Eval(snapshot(map[string]float64{"cpu": 92, "blocking": 0})))
	assert.False(t, and.Eval(snapshot(map[string]float64{"cpu": 50, "blocking": 4})))
	// One side missing means not fired, not an error.
	assert.False(t, and.Eval(snapshot(map[string]float64{"cpu": 92})))
}

func TestSnapshotFromRaw(t *testing.T) {
	raw := map[string]interface{}{
		"cpu":     92.5,
		"count":   int64(4),
		"flag":    true,
		"text":    "120.5",
		"garbage": struct{}{},
		"nothex":  "abc",
	}

	snap := SnapshotFromRaw(time.Now(), raw)

	v, ok := snap.Value("cpu")
	assert.True(t, ok)
	assert.Equal(t, 92.5, v)

	v, ok = snap.Value("count")
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	v, ok = snap.Value("flag")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = snap.Value("text")
	assert.True(t, ok)
	assert.Equal(t, 120.5, v)

	_, ok = snap.Value("garbage")
	assert.False(t, ok)
	_, ok = snap.Value("nothex")
	assert.False(t, ok)
	assert.Equal(t, 4, snap.Len())
}

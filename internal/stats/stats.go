// Package stats holds the bounded histories and descriptive statistics the
// detectors are built on.
package stats

import (
	"math"
	"time"
)

// Statistics describes a window of samples.
type Statistics struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Rolling computes population statistics over values. An empty input yields
// zeroed statistics.
func Rolling(values []float64) Statistics {
	if len(values) == 0 {
		return Statistics{}
	}
	n := float64(len(values))
	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	return Statistics{
		Mean:   mean,
		StdDev: math.Sqrt(sq / n),
		Min:    lo,
		Max:    hi,
		Count:  len(values),
	}
}

// ZScore is (value - mean) / std_dev over history, 0 on a flat history.
func ZScore(history []float64, value float64) float64 {
	s := Rolling(history)
	if s.StdDev == 0 {
		return 0
	}
	return (value - s.Mean) / s.StdDev
}

// IsAnomaly reports whether |z| exceeds threshold.
func IsAnomaly(history []float64, value, threshold float64) bool {
	return math.Abs(ZScore(history, value)) > threshold
}

// RateOfChange returns the change per minute between two samples. It returns
// nil when there is no previous sample or no time has elapsed.
func RateOfChange(prev *float64, prevAt time.Time, value float64, now time.Time) *float64 {
	if prev == nil || prevAt.IsZero() {
		return nil
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return nil
	}
	rate := (value - *prev) / elapsed * 60
	return &rate
}

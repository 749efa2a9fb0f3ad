package domain

import "time"

// Bounds holds the clamping limits applied to monitor settings.
type Bounds struct {
	MinInterval      time.Duration
	MaxInterval      time.Duration
	MinTimeout       time.Duration
	MaxTimeout       time.Duration
	DefaultTimeout   time.Duration
	MinThreshold     int
	MaxThreshold     int
	DefaultThreshold int
}

// DefaultBounds returns the stock limits.
func DefaultBounds() Bounds {
	return Bounds{
		MinInterval:      30 * time.Second,
		MaxInterval:      time.Hour,
		MinTimeout:       time.Second,
		MaxTimeout:       30 * time.Second,
		DefaultTimeout:   8 * time.Second,
		MinThreshold:     1,
		MaxThreshold:     10,
		DefaultThreshold: 3,
	}
}

// ClampInterval converts interval seconds into a duration within bounds.
// Non-positive values fall back to the minimum.
func (b Bounds) ClampInterval(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d < b.MinInterval {
		return b.MinInterval
	}
	if d > b.MaxInterval {
		return b.MaxInterval
	}
	return d
}

// ClampTimeout converts a timeout in milliseconds into a duration within bounds.
func (b Bounds) ClampTimeout(ms int) time.Duration {
	if ms <= 0 {
		return b.DefaultTimeout
	}
	d := time.Duration(ms) * time.Millisecond
	if d < b.MinTimeout {
		return b.MinTimeout
	}
	if d > b.MaxTimeout {
		return b.MaxTimeout
	}
	return d
}

// ClampThreshold keeps a failure threshold within bounds.
func (b Bounds) ClampThreshold(n int) int {
	if n <= 0 {
		return b.DefaultThreshold
	}
	if n < b.MinThreshold {
		return b.MinThreshold
	}
	if n > b.MaxThreshold {
		return b.MaxThreshold
	}
	return n
}

// ABOUTME: Page size bounds for message history queries
// ABOUTME: Clamps numeric limits and parses raw query-string values

package store

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MinLimit     = 1
	MaxLimit     = 200
)

// ClampLimit bounds n to [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ParseLimit converts a raw limit value into a page size. Empty or
// non-numeric input yields DefaultLimit; numeric input is floored and clamped,
// so "0" and negative values become MinLimit.
func ParseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLimit
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultLimit
	}
	f = math.Floor(f)
	if f < MinLimit {
		return MinLimit
	}
	if f > MaxLimit {
		return MaxLimit
	}
	return int(f)
}

package health

import (
	"context"
	"time"
)

// Result represents the outcome of a health check
type Result struct {
	Service   string
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Service names the checked service
	Service() string
}

// Summary counts healthy and unhealthy results
type Summary struct {
	Healthy   int
	Unhealthy int
}

// Summarize counts results
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		if r.Healthy {
			s.Healthy++
		} else {
			s.Unhealthy++
		}
	}
	return s
}

// Package models defines the rate limiter's configuration, counter and
// status types.
package models

import (
	"time"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Config is a per-operation limit: at most MaxRequests calls per fixed
// window of WindowSeconds. Operations without a config are unthrottled.
type Config struct {
	Operation     string `json:"operation"`
	MaxRequests   uint32 `json:"max_requests"`
	WindowSeconds uint64 `json:"window_seconds"`
}

func (c Config) Validate() error {
	if c.Operation == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "rate limit config requires an operation")
	}
	if c.MaxRequests < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "max_requests must be at least 1")
	}
	if c.WindowSeconds < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "window_seconds must be at least 1")
	}
	return nil
}

// Counter tracks one principal's usage of one operation inside the current
// fixed window. The window rolls lazily: it is only reset when a call
// arrives after WindowStart + WindowSeconds.
type Counter struct {
	Principal    id.Principal `json:"principal"`
	Operation    string       `json:"operation"`
	CurrentCount uint32       `json:"current_count"`
	WindowStart  time.Time    `json:"window_start"`
}

// Expired reports whether the window had already ended at the given instant.
func (c Counter) Expired(now time.Time, windowSeconds uint64) bool {
	return !now.Before(c.WindowStart.Add(time.Duration(windowSeconds) * time.Second))
}

// Status is a read-only snapshot of a principal's standing for one
// operation. It reports the stored window as-is: if the window has lapsed
// but no call has rolled it yet, ResetAt is in the past.
type Status struct {
	Operation    string    `json:"operation"`
	CurrentCount uint32    `json:"current_count"`
	MaxRequests  uint32    `json:"max_requests"`
	WindowStart  time.Time `json:"window_start"`
	ResetAt      time.Time `json:"reset_at"`
	Bypass       bool      `json:"bypass"`
}

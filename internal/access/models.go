// Package access keeps the ordinary access-grant table: which grantee may
// see which patient's records, at what level, until when.
package access

import (
	"time"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Level is the strength of an access grant. Levels are ordered: Full covers
// Write covers Read covers None.
type Level string

const (
	LevelNone  Level = "NONE"
	LevelRead  Level = "READ"
	LevelWrite Level = "WRITE"
	LevelFull  Level = "FULL"
)

func (l Level) IsValid() bool {
	switch l {
	case LevelNone, LevelRead, LevelWrite, LevelFull:
		return true
	}
	return false
}

func (l Level) String() string { return string(l) }

func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelFull:
		return 3
	default:
		return 0
	}
}

// Covers reports whether this level satisfies the required one.
func (l Level) Covers(required Level) bool {
	return l.rank() >= required.rank()
}

// ParseLevel converts wire input into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown access level %q", s)
	}
	return l, nil
}

// Grant is one (patient, grantee) access grant. A later grant for the same
// pair replaces the earlier one.
type Grant struct {
	Patient   id.Principal `json:"patient"`
	Grantee   id.Principal `json:"grantee"`
	Level     Level        `json:"level"`
	GrantedAt time.Time    `json:"granted_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ActiveAt reports whether the grant is usable at the given instant.
func (g Grant) ActiveAt(now time.Time) bool {
	return now.Before(g.ExpiresAt)
}

const maxGrantDurationSeconds = 365 * 24 * 3600

func validateDuration(durationSeconds uint64) error {
	if durationSeconds < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "grant duration must be at least 1 second")
	}
	if durationSeconds > maxGrantDurationSeconds {
		return dErrors.New(dErrors.CodeInvalidInput, "grant duration exceeds one year")
	}
	return nil
}

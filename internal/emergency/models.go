// Package emergency implements time-boxed, attestation-gated emergency
// access to patient records, with a per-grant action trail.
package emergency

import (
	"time"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Condition is the declared clinical justification for an emergency grant.
type Condition string

const (
	ConditionLifeThreatening   Condition = "LIFE_THREATENING"
	ConditionUnconscious       Condition = "UNCONSCIOUS"
	ConditionSurgicalEmergency Condition = "SURGICAL_EMERGENCY"
	ConditionMassCasualties    Condition = "MASS_CASUALTIES"
)

func (c Condition) IsValid() bool {
	switch c {
	case ConditionLifeThreatening, ConditionUnconscious, ConditionSurgicalEmergency, ConditionMassCasualties:
		return true
	}
	return false
}

func (c Condition) String() string { return string(c) }

// ParseCondition converts wire input into a Condition.
func ParseCondition(s string) (Condition, error) {
	c := Condition(s)
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown emergency condition %q", s)
	}
	return c, nil
}

// Status is an emergency grant's lifecycle state. Revoked and Expired are
// terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

func (s Status) String() string { return string(s) }

// transition is the only way a grant changes state. Every move out of a
// terminal state is rejected, so a revoked grant can never expire and an
// expired grant can never be revoked.
func (s Status) transition(to Status) (Status, error) {
	if s != StatusActive {
		switch s {
		case StatusRevoked:
			return s, dErrors.New(dErrors.CodeEmergencyRevoked, "grant is already revoked")
		case StatusExpired:
			return s, dErrors.New(dErrors.CodeEmergencyExpired, "grant has already expired")
		}
		return s, dErrors.Newf(dErrors.CodeInvariantViolation, "grant in unknown status %q", s)
	}
	if to != StatusRevoked && to != StatusExpired {
		return s, dErrors.Newf(dErrors.CodeInvariantViolation, "invalid transition from %s to %s", s, to)
	}
	return to, nil
}

// Access is one emergency grant.
type Access struct {
	ID          uint64         `json:"id"`
	Patient     id.Principal   `json:"patient"`
	Requester   id.Principal   `json:"requester"`
	Condition   Condition      `json:"condition"`
	Attestation string         `json:"attestation"`
	GrantedAt   time.Time      `json:"granted_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Status      Status         `json:"status"`
	Contacts    []id.Principal `json:"contacts,omitempty"`
}

// Usable reports whether the grant admits access at the given instant.
func (a Access) Usable(now time.Time) bool {
	return a.Status == StatusActive && now.Before(a.ExpiresAt)
}

// TrailAction classifies one step in a grant's history.
type TrailAction string

const (
	TrailGranted  TrailAction = "GRANTED"
	TrailRevoked  TrailAction = "REVOKED"
	TrailAccessed TrailAction = "ACCESSED"
	TrailNotified TrailAction = "NOTIFIED"
)

// TrailEntry is one step in a grant's history.
type TrailEntry struct {
	AccessID  uint64       `json:"access_id"`
	Actor     id.Principal `json:"actor"`
	Action    TrailAction  `json:"action"`
	Timestamp time.Time    `json:"timestamp"`
}

// Grant duration bounds, in seconds.
const (
	minDurationSeconds = 1
	maxDurationSeconds = 86400
)

func validateDuration(durationSeconds uint64) error {
	if durationSeconds < minDurationSeconds {
		return dErrors.New(dErrors.CodeInvalidInput, "emergency duration must be at least 1 second")
	}
	if durationSeconds > maxDurationSeconds {
		return dErrors.New(dErrors.CodeInvalidInput, "emergency duration exceeds 24 hours")
	}
	return nil
}

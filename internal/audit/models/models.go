// Package models defines the audit log's entry type and its enumerations.
package models

import (
	"time"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Action classifies what the actor attempted.
type Action string

const (
	ActionRead            Action = "READ"
	ActionWrite           Action = "WRITE"
	ActionDelete          Action = "DELETE"
	ActionGrantAccess     Action = "GRANT_ACCESS"
	ActionRevokeAccess    Action = "REVOKE_ACCESS"
	ActionEmergencyAccess Action = "EMERGENCY_ACCESS"
	ActionQuery           Action = "QUERY"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionGrantAccess,
		ActionRevokeAccess, ActionEmergencyAccess, ActionQuery:
		return true
	}
	return false
}

func (a Action) String() string { return string(a) }

// ParseAction converts wire input into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown audit action %q", s)
	}
	return a, nil
}

// Result classifies how the attempt ended.
type Result string

const (
	ResultSuccess  Result = "SUCCESS"
	ResultFailure  Result = "FAILURE"
	ResultDenied   Result = "DENIED"
	ResultNotFound Result = "NOT_FOUND"
	ResultExpired  Result = "EXPIRED"
)

func (r Result) IsValid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultDenied, ResultNotFound, ResultExpired:
		return true
	}
	return false
}

func (r Result) String() string { return string(r) }

// ParseResult converts wire input into a Result.
func ParseResult(s string) (Result, error) {
	r := Result(s)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown audit result %q", s)
	}
	return r, nil
}

// Entry is one immutable line of the audit log. IDs are assigned by the
// store, start at 1, and strictly increase in append order. Entries are
// never updated or deleted once written.
type Entry struct {
	ID        uint64       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Actor     id.Principal `json:"actor"`
	Patient   id.Principal `json:"patient"`
	RecordID  *id.RecordID `json:"record_id,omitempty"`
	Action    Action       `json:"action"`
	Result    Result       `json:"result"`
	Reason    string       `json:"reason,omitempty"`
	IPAddress string       `json:"ip_address,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
}

// Validate checks the fields a caller controls. ID and Timestamp are filled
// in by the service and store.
func (e Entry) Validate() error {
	if e.Actor.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "audit entry requires an actor")
	}
	if e.Patient.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "audit entry requires a patient")
	}
	if !e.Action.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid audit action %q", e.Action)
	}
	if !e.Result.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid audit result %q", e.Result)
	}
	return nil
}

// TimeRange bounds a query over entry timestamps, inclusive on both ends.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr TimeRange) Validate() error {
	if tr.End.Before(tr.Start) {
		return dErrors.New(dErrors.CodeInvalidInput, "time range end precedes start")
	}
	return nil
}

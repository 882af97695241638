// Package provider keeps the provider registry and its verification state.
// A provider's verification status drives the rate-limit bypass: Verified
// identities are trusted with unthrottled access until they lose the status.
package provider

import (
	"time"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// VerificationStatus is where a provider stands in the vetting process.
type VerificationStatus string

const (
	StatusPending   VerificationStatus = "PENDING"
	StatusVerified  VerificationStatus = "VERIFIED"
	StatusRejected  VerificationStatus = "REJECTED"
	StatusSuspended VerificationStatus = "SUSPENDED"
)

func (v VerificationStatus) IsValid() bool {
	switch v {
	case StatusPending, StatusVerified, StatusRejected, StatusSuspended:
		return true
	}
	return false
}

func (v VerificationStatus) String() string { return string(v) }

// ParseStatus converts wire input into a VerificationStatus.
func ParseStatus(s string) (VerificationStatus, error) {
	v := VerificationStatus(s)
	if !v.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification status %q", s)
	}
	return v, nil
}

// Provider is one registered healthcare provider.
type Provider struct {
	Principal    id.Principal       `json:"principal"`
	Name         string             `json:"name"`
	Status       VerificationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	VerifiedAt   *time.Time         `json:"verified_at,omitempty"`
	VerifiedBy   *id.Principal      `json:"verified_by,omitempty"`
}

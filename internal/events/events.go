// Package events defines the domain events the engine publishes and the
// publisher implementations that carry them. Every state change that matters
// to downstream consumers (grant issued, limit exceeded, audit entry written)
// becomes exactly one event.
package events

import (
	"context"
	"time"

	id "medgate/pkg/domain"
)

// Event is implemented by every publishable domain event. Topic selects the
// destination stream; Key selects the partition so events for one subject
// stay ordered.
type Event interface {
	Topic() string
	Key() string
}

// Publisher delivers events to whatever backend is configured. Delivery is
// best effort: services log publish failures but never fail the operation.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// === Emergency events ===

type EmergencyGranted struct {
	GrantID   uint64       `json:"grant_id"`
	Patient   id.Principal `json:"patient"`
	Provider  id.Principal `json:"provider"`
	Condition string       `json:"condition"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (EmergencyGranted) Topic() string { return "emergency.granted" }
func (e EmergencyGranted) Key() string { return e.Patient.String() }

type EmergencyRevoked struct {
	GrantID   uint64       `json:"grant_id"`
	Patient   id.Principal `json:"patient"`
	Provider  id.Principal `json:"provider"`
	RevokedBy id.Principal `json:"revoked_by"`
	RevokedAt time.Time    `json:"revoked_at"`
}

func (EmergencyRevoked) Topic() string { return "emergency.revoked" }
func (e EmergencyRevoked) Key() string { return e.Patient.String() }

type EmergencyAccessed struct {
	GrantID    uint64       `json:"grant_id"`
	Provider   id.Principal `json:"provider"`
	RecordID   id.RecordID  `json:"record_id"`
	AccessedAt time.Time    `json:"accessed_at"`
}

func (EmergencyAccessed) Topic() string { return "emergency.accessed" }
func (e EmergencyAccessed) Key() string { return e.Provider.String() }

type EmergencyContactNotified struct {
	GrantID    uint64       `json:"grant_id"`
	Patient    id.Principal `json:"patient"`
	Contact    string       `json:"contact"`
	NotifiedAt time.Time    `json:"notified_at"`
}

func (EmergencyContactNotified) Topic() string { return "emergency.contact_notified" }
func (e EmergencyContactNotified) Key() string { return e.Patient.String() }

// === Rate limit events ===

type RateLimitExceeded struct {
	Principal  id.Principal `json:"principal"`
	Operation  string       `json:"operation"`
	Count      uint32       `json:"count"`
	MaxActions uint32       `json:"max_actions"`
	DeniedAt   time.Time    `json:"denied_at"`
}

func (RateLimitExceeded) Topic() string { return "ratelimit.exceeded" }
func (e RateLimitExceeded) Key() string { return e.Principal.String() }

type RateLimitConfigUpdated struct {
	Operation     string       `json:"operation"`
	MaxActions    uint32       `json:"max_actions"`
	WindowSeconds uint64       `json:"window_seconds"`
	UpdatedBy     id.Principal `json:"updated_by"`
}

func (RateLimitConfigUpdated) Topic() string { return "ratelimit.config_updated" }
func (e RateLimitConfigUpdated) Key() string { return e.Operation }

type RateLimitBypassUpdated struct {
	Principal id.Principal `json:"principal"`
	Enabled   bool         `json:"enabled"`
	UpdatedBy id.Principal `json:"updated_by"`
}

func (RateLimitBypassUpdated) Topic() string { return "ratelimit.bypass_updated" }
func (e RateLimitBypassUpdated) Key() string { return e.Principal.String() }

// === Audit events ===

type AuditEntryCreated struct {
	EntryID   uint64       `json:"entry_id"`
	Actor     id.Principal `json:"actor"`
	Action    string       `json:"action"`
	Result    string       `json:"result"`
	RecordID  id.RecordID  `json:"record_id"`
	Timestamp time.Time    `json:"timestamp"`
}

func (AuditEntryCreated) Topic() string { return "audit.entry_created" }
func (e AuditEntryCreated) Key() string { return e.Actor.String() }

// === Access and registry events ===

type AccessGranted struct {
	Patient   id.Principal `json:"patient"`
	Grantee   id.Principal `json:"grantee"`
	Level     string       `json:"level"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (AccessGranted) Topic() string { return "access.granted" }
func (e AccessGranted) Key() string { return e.Patient.String() }

type AccessRevoked struct {
	Patient id.Principal `json:"patient"`
	Grantee id.Principal `json:"grantee"`
}

func (AccessRevoked) Topic() string { return "access.revoked" }
func (e AccessRevoked) Key() string { return e.Patient.String() }

type ProviderVerified struct {
	Provider   id.Principal `json:"provider"`
	Status     string       `json:"status"`
	VerifiedBy id.Principal `json:"verified_by"`
}

func (ProviderVerified) Topic() string { return "provider.verified" }
func (e ProviderVerified) Key() string { return e.Provider.String() }

type RecordAdded struct {
	RecordID id.RecordID  `json:"record_id"`
	Patient  id.Principal `json:"patient"`
	AddedBy  id.Principal `json:"added_by"`
}

func (RecordAdded) Topic() string { return "record.added" }
func (e RecordAdded) Key() string { return e.Patient.String() }

// Topics lists every event topic, for broker bootstrap.
func Topics() []string {
	return []string{
		EmergencyGranted{}.Topic(),
		EmergencyRevoked{}.Topic(),
		EmergencyAccessed{}.Topic(),
		EmergencyContactNotified{}.Topic(),
		RateLimitExceeded{}.Topic(),
		RateLimitConfigUpdated{}.Topic(),
		RateLimitBypassUpdated{}.Topic(),
		AuditEntryCreated{}.Topic(),
		AccessGranted{}.Topic(),
		AccessRevoked{}.Topic(),
		ProviderVerified{}.Topic(),
		RecordAdded{}.Topic(),
	}
}

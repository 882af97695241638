// Package domain holds identifier types shared by every module.
package domain

// Principal is an opaque, unforgeable caller identity: a patient, provider,
// admin, or other account. The engine never inspects its structure; equality
// is the only operation that matters.
type Principal string

func (p Principal) String() string { return string(p) }

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return p == "" }

// RecordID identifies a stored medical record.
type RecordID = uint64

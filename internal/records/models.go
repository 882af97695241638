// Package records keeps record metadata. Payloads live elsewhere; the
// engine only needs enough to gate and audit access to them.
package records

import (
	"time"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Record is the metadata for one medical record.
type Record struct {
	ID        id.RecordID  `json:"id"`
	Patient   id.Principal `json:"patient"`
	Provider  id.Principal `json:"provider"`
	Hash      string       `json:"hash"`
	CreatedAt time.Time    `json:"created_at"`
}

func (r Record) validate() error {
	if r.Patient.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "record requires a patient")
	}
	if r.Provider.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "record requires a provider")
	}
	if r.Hash == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "record requires a content hash")
	}
	return nil
}

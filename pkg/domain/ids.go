// Package domain holds typed identifiers shared across the ledger.
//
// Each identifier is a distinct named type over uuid.UUID so a TenantID can
// never be passed where an EvidenceID is expected. Storage signatures take
// these types, which makes the tenant predicate impossible to forget.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "evidenceledger/pkg/domain-errors"
)

type (
	TenantID     uuid.UUID
	UserID       uuid.UUID
	EvidenceID   uuid.UUID
	AuditEventID uuid.UUID
)

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id EvidenceID) String() string   { return uuid.UUID(id).String() }
func (id AuditEventID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id AuditEventID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id TenantID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id EvidenceID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id AuditEventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TenantID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EvidenceID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEventID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// NewEvidenceID generates a fresh evidence identifier.
func NewEvidenceID() EvidenceID { return EvidenceID(uuid.New()) }

// NewAuditEventID generates a fresh audit event identifier.
func NewAuditEventID() AuditEventID { return AuditEventID(uuid.New()) }

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant_id")
	return TenantID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseEvidenceID(s string) (EvidenceID, error) {
	u, err := parseUUID(s, "evidence_id")
	return EvidenceID(u), err
}

func ParseAuditEventID(s string) (AuditEventID, error) {
	u, err := parseUUID(s, "event_id")
	return AuditEventID(u), err
}

// parseUUID is the single trust-boundary parser for every ID type.
// Empty, malformed and nil UUIDs are all rejected.
func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.WithFields(dErrors.CodeValidation, field+" is required",
			[]dErrors.FieldError{{Field: field, Message: "is required"}})
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.WithFields(dErrors.CodeValidation, field+" is not a valid identifier",
			[]dErrors.FieldError{{Field: field, Message: "must be a UUID"}})
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.WithFields(dErrors.CodeValidation, field+" must not be the nil UUID",
			[]dErrors.FieldError{{Field: field, Message: "must not be the nil UUID"}})
	}
	return u, nil
}

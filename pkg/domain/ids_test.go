package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "evidenceledger/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEvidenceID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEvidenceID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseEvidenceID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseEvidenceID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, EvidenceID(validUUID), id)
	})

	t.Run("names the rejected field", func(t *testing.T) {
		_, err := ParseTenantID("bogus")
		de, ok := dErrors.As(err)
		require.True(t, ok)
		require.Len(t, de.Fields, 1)
		assert.Equal(t, "tenant_id", de.Fields[0].Field)
	})
}

// TestTypeDistinction documents that typed IDs are not interchangeable.
// var _ EvidenceID = TenantID(uuid.New()) would not compile.
func TestTypeDistinction(t *testing.T) {
	evidenceID := NewEvidenceID()
	tenantID := TenantID(uuid.New())

	assert.NotEqual(t, uuid.UUID(evidenceID), uuid.UUID(tenantID))
	assert.False(t, evidenceID.IsNil())
	assert.True(t, EvidenceID(uuid.Nil).IsNil())
}

// TestParseID_SecurityInvariants validates parsing rules at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE evidence;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvidenceID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errTenant := ParseTenantID(validUUID)
		_, errUser := ParseUserID(validUUID)
		_, errEvidence := ParseEvidenceID(validUUID)
		_, errEvent := ParseAuditEventID(validUUID)

		require.NoError(t, errTenant)
		require.NoError(t, errUser)
		require.NoError(t, errEvidence)
		require.NoError(t, errEvent)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errTenant := ParseTenantID(input)
			_, errUser := ParseUserID(input)
			_, errEvidence := ParseEvidenceID(input)
			_, errEvent := ParseAuditEventID(input)

			require.Error(t, errTenant)
			require.Error(t, errUser)
			require.Error(t, errEvidence)
			require.Error(t, errEvent)
		})
	}
}

func TestIDsMarshalAsText(t *testing.T) {
	evidenceID := NewEvidenceID()
	b, err := json.Marshal(struct {
		ID EvidenceID `json:"id"`
	}{evidenceID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+evidenceID.String()+`"}`, string(b))

	var decoded struct {
		ID EvidenceID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, evidenceID, decoded.ID)
}

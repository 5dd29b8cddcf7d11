package store_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"evidenceledger/internal/evidence/models"
	id "evidenceledger/pkg/domain"
)

var (
	tenantA = id.TenantID(uuid.MustParse("a1a1a1a1-0000-4000-8000-000000000001"))
	tenantB = id.TenantID(uuid.MustParse("b2b2b2b2-0000-4000-8000-000000000002"))
	actor   = id.UserID(uuid.MustParse("c3c3c3c3-0000-4000-8000-000000000003"))
	baseNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
)

func draft(t *testing.T, tenantID id.TenantID, dataset string, createdAt time.Time) *models.EvidenceRecord {
	t.Helper()
	personal := false
	rec, err := models.NewDraft(id.NewEvidenceID(), tenantID, actor, models.Declaration{
		IngestionMethod:      "FILE_UPLOAD",
		DatasetType:          dataset,
		SourceSystem:         "sftp:supplier-drop",
		DeclaredScope:        "SITE",
		ScopeTargetID:        "site-1",
		PurposeTags:          []string{"CBAM_REPORTING", "INTERNAL_AUDIT"},
		RetentionPolicy:      "STANDARD_7_YEARS",
		ContainsPersonalData: &personal,
		Title:                "Q1 meter readings",
		Attributes:           []byte(`{"meter":"M-1","unit":"kWh"}`),
	}, createdAt)
	require.NoError(t, err)
	return rec
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "evidenceledger/pkg/domain-errors"
)

func TestCheckTransition(t *testing.T) {
	legal := []struct {
		from   LedgerState
		action Action
		to     LedgerState
	}{
		{StateDraft, ActionAttachPayload, StateReadyToSeal},
		{StateReadyToSeal, ActionSeal, StateSealed},
		{StateReadyToSeal, ActionSeal, StateQuarantined},
		{StateQuarantined, ActionResolveQuarantine, StateSealed},
		{StateDraft, ActionUpdateMetadata, StateDraft},
		{StateReadyToSeal, ActionUpdateMetadata, StateReadyToSeal},
	}
	for _, tt := range legal {
		assert.NoError(t, CheckTransition(tt.from, tt.action, tt.to), "%s -%s-> %s", tt.from, tt.action, tt.to)
	}

	illegal := []struct {
		from   LedgerState
		action Action
		to     LedgerState
		code   dErrors.Code
	}{
		{StateSealed, ActionSeal, StateSealed, dErrors.CodeImmutabilityConflict},
		{StateQuarantined, ActionSeal, StateSealed, dErrors.CodeImmutabilityConflict},
		{StateDraft, ActionSeal, StateSealed, dErrors.CodeMissingPayload},
		{StateRejected, ActionSeal, StateSealed, dErrors.CodeInvalidTransition},
		{StateReadyToSeal, ActionAttachPayload, StateReadyToSeal, dErrors.CodeInvalidTransition},
		{StateSealed, ActionAttachPayload, StateReadyToSeal, dErrors.CodeImmutabilityConflict},
		{StateSealed, ActionResolveQuarantine, StateSealed, dErrors.CodeImmutabilityConflict},
		{StateDraft, ActionResolveQuarantine, StateSealed, dErrors.CodeInvalidTransition},
		{StateQuarantined, ActionUpdateMetadata, StateQuarantined, dErrors.CodeImmutabilityConflict},
		{StateRejected, ActionUpdateMetadata, StateRejected, dErrors.CodeInvalidTransition},
		{StateReadyToSeal, ActionSeal, StateDraft, dErrors.CodeInvalidTransition},
	}
	for _, tt := range illegal {
		err := CheckTransition(tt.from, tt.action, tt.to)
		require.Error(t, err, "%s -%s-> %s", tt.from, tt.action, tt.to)
		assert.True(t, dErrors.HasCode(err, tt.code), "%s -%s-> %s: got %v", tt.from, tt.action, tt.to, err)
	}
}

func TestDerivationIgnoresEverythingButMethod(t *testing.T) {
	cases := map[IngestionMethod][2]string{
		MethodManualEntry: {string(TrustLow), string(ReviewPendingReview)},
		MethodFileUpload:  {string(TrustMedium), string(ReviewPendingReview)},
		MethodAPIPush:     {string(TrustMedium), string(ReviewNotReviewed)},
		MethodSystemPull:  {string(TrustHigh), string(ReviewApproved)},
	}
	for method, want := range cases {
		assert.Equal(t, want[0], string(DeriveTrustLevel(method)), method)
		assert.Equal(t, want[1], string(DeriveReviewStatus(method)), method)
	}
}

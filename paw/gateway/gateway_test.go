package gateway

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/models"
)

// quiet disables simulated latency and fault injection for tests.
func quiet(scenario string) Config {
	return Config{Scenario: scenario}
}

func testSubmission() models.PASubmission {
	return models.PASubmission{
		CaseID:         "case-1",
		MemberID:       "M123",
		PatientName:    "Sarah Chen",
		MedicationName: "Adalimumab",
		PrescriberNPI:  "1234567893",
	}
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		payer    string
		expected string
	}{
		{"Acme Health", "ACM"},
		{"United Healthcare", "UNI"},
		{"Cigna", "CIG"},
		{"bo co", "BO"},
		{"", "PAY"},
		{"   ", "PAY"},
	}

	for _, tt := range tests {
		t.Run(tt.payer, func(t *testing.T) {
			assert.Equal(t, tt.expected, Prefix(tt.payer))
		})
	}
}

func TestSubmitPAReferenceFormat(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioHappyPath))
	gw := registry.Lookup("Acme Health")

	resp, err := gw.SubmitPA(context.Background(), testSubmission())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ACM-\d{8}-[0-9a-f]{8}$`), resp.Reference)
	assert.Equal(t, models.ResponseSubmitted, resp.Status)
}

func TestRegistryAutoCreatesUnknownPayer(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioHappyPath))

	gw := registry.Lookup("Mystery Mutual")
	require.NotNil(t, gw)

	// The same payer name resolves to the same gateway instance, so
	// references issued earlier remain known.
	again := registry.Lookup("Mystery Mutual")
	assert.Same(t, gw, again)
}

func TestCheckStatusUnknownReference(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioHappyPath))
	gw := registry.Lookup("Cigna")

	_, err := gw.CheckStatus(context.Background(), "CIG-20260830-aaaaaaaa")
	require.Error(t, err)

	var upstream *customErrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 404, upstream.StatusCode)
}

func TestHappyPathApproves(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioHappyPath))
	gw := registry.Lookup("United Healthcare")

	sub, err := gw.SubmitPA(context.Background(), testSubmission())
	require.NoError(t, err)

	status, err := gw.CheckStatus(context.Background(), sub.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseApproved, status.Status)
	require.NotNil(t, status.Approval)
	assert.NotEmpty(t, status.Approval.AuthNumber)
}

func TestFirstStatusReachableFromSubmitted(t *testing.T) {
	scenarios := []string{
		ScenarioHappyPath,
		ScenarioMissingDocs,
		ScenarioPrimaryDenial,
		ScenarioRecoverySuccess,
	}

	for _, scenario := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			gw := NewRegistry(quiet(scenario)).Lookup("Cigna")
			ctx := context.Background()

			sub, err := gw.SubmitPA(ctx, testSubmission())
			require.NoError(t, err)
			assert.Equal(t, models.ResponseSubmitted, sub.Status)

			status, err := gw.CheckStatus(ctx, sub.Reference)
			require.NoError(t, err)

			mapped, known := models.MapResponseStatus(status.Status)
			require.True(t, known)
			assert.True(t, models.StatusSubmitted.CanTransition(mapped),
				"status %s not reachable from submitted", mapped)
		})
	}
}

func TestMissingDocsScenario(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioMissingDocs))
	gw := registry.Lookup("Anthem")
	ctx := context.Background()

	sub, err := gw.SubmitPA(ctx, testSubmission())
	require.NoError(t, err)

	// Pending for documents until they arrive, no matter how often polled.
	for i := 0; i < 3; i++ {
		status, err := gw.CheckStatus(ctx, sub.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.ResponsePendingInfo, status.Status)
		assert.NotEmpty(t, status.RequiredDocs)
	}

	docs, err := gw.SubmitDocuments(ctx, sub.Reference, []string{"recent lab results"})
	require.NoError(t, err)
	assert.Equal(t, models.ResponsePending, docs.Status)

	status, err := gw.CheckStatus(ctx, sub.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseApproved, status.Status)
}

func TestPrimaryDenialScenario(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioPrimaryDenial))
	gw := registry.Lookup("United Healthcare")
	ctx := context.Background()

	sub, err := gw.SubmitPA(ctx, testSubmission())
	require.NoError(t, err)

	status, err := gw.CheckStatus(ctx, sub.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseDenied, status.Status)
	assert.NotEmpty(t, status.DenialReason)
	assert.NotEmpty(t, status.DenialCode)
	require.NotNil(t, status.AppealDeadline)

	// The denial reason is stable across polls.
	second, err := gw.CheckStatus(ctx, sub.Reference)
	require.NoError(t, err)
	assert.Equal(t, status.DenialReason, second.DenialReason)

	appeal, err := gw.SubmitAppeal(ctx, sub.Reference, "appeal letter", nil)
	require.NoError(t, err)
	assert.Equal(t, sub.Reference+"-APL", appeal.Reference)
	assert.Equal(t, models.ResponseAppealPending, appeal.Status)

	after, err := gw.CheckStatus(ctx, sub.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseAppealPending, after.Status)
}

func TestRecoverySuccessScenarioApprovesAppeal(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioRecoverySuccess))
	gw := registry.Lookup("Cigna")
	ctx := context.Background()

	sub, err := gw.SubmitPA(ctx, testSubmission())
	require.NoError(t, err)

	status, err := gw.CheckStatus(ctx, sub.Reference)
	require.NoError(t, err)
	require.Equal(t, models.ResponseDenied, status.Status)

	_, err = gw.SubmitAppeal(ctx, sub.Reference, "appeal letter", []string{"labs"})
	require.NoError(t, err)

	after, err := gw.CheckStatus(ctx, sub.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseAppealApproved, after.Status)
}

func TestRequestPeerToPeer(t *testing.T) {
	registry := NewRegistry(quiet(ScenarioPrimaryDenial))
	gw := registry.Lookup("United Healthcare")
	ctx := context.Background()

	sub, err := gw.SubmitPA(ctx, testSubmission())
	require.NoError(t, err)

	schedule, err := gw.RequestPeerToPeer(ctx, sub.Reference, nil)
	require.NoError(t, err)
	assert.Equal(t, sub.Reference, schedule.Reference)
	assert.False(t, schedule.ScheduledTime.IsZero())
	assert.Regexp(t, `^UHC-P2P-\d{4}$`, schedule.ConfirmationCode)
	assert.NotEmpty(t, schedule.ReviewerName)
	assert.NotEmpty(t, schedule.ContactPhone)
}

package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prior-auth/paw-app/paw/client"
	"github.com/prior-auth/paw-app/paw/constants"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/gateway"
	"github.com/prior-auth/paw-app/paw/models"
	"github.com/prior-auth/paw-app/paw/planner"
)

type stubDrafter struct {
	strategy *models.AppealStrategy
	err      error
	calls    int
}

func (s *stubDrafter) DraftAppeal(ctx context.Context, req client.AppealDraftRequest) (*models.AppealStrategy, error) {
	s.calls++
	return s.strategy, s.err
}

func newTestCoordinator(t *testing.T, scenario string, drafter client.Drafter) (*Coordinator, *gateway.Registry) {
	t.Helper()
	registry := gateway.NewRegistry(gateway.Config{Scenario: scenario})
	catalog, err := planner.LoadPolicyCatalog()
	require.NoError(t, err)
	return New(registry, planner.NewAppealPlanner(drafter, catalog)), registry
}

func baseCase(payers ...string) *models.Case {
	return &models.Case{
		ID:            "case-1",
		PayerSequence: payers,
		Patient: models.Patient{
			MemberID:  "M123",
			FirstName: "Sarah",
			LastName:  "Chen",
			Diagnoses: []models.Diagnosis{{ICD10Code: "M05.79", Description: "Rheumatoid arthritis"}},
		},
		Medication: models.MedicationRequest{Name: "Adalimumab", HCPCSCode: "J0135"},
		Prescriber: models.Prescriber{NPI: "1234567893", FirstName: "Amara", LastName: "Okafor"},
	}
}

// deniedCase establishes a live reference with the payer's simulated gateway
// and returns a case holding a denied state for it.
func deniedCase(t *testing.T, registry *gateway.Registry, payer, reason string, withDeadline bool) *models.Case {
	t.Helper()
	c := baseCase(payer)
	resp, err := registry.Lookup(payer).SubmitPA(context.Background(), models.NewPASubmission(c))
	require.NoError(t, err)

	state := &models.PayerState{
		PayerName:    payer,
		Status:       models.StatusDenied,
		Reference:    resp.Reference,
		DenialReason: reason,
		LastUpdated:  time.Now(),
	}
	if withDeadline {
		deadline := time.Now().Add(30 * 24 * time.Hour)
		state.AppealDeadline = &deadline
	}
	c.PayerStates = map[string]*models.PayerState{payer: state}
	return c
}

func TestExecuteNextActionNoStrategy(t *testing.T) {
	co, _ := newTestCoordinator(t, gateway.ScenarioHappyPath, &stubDrafter{})

	_, err := co.ExecuteNextAction(context.Background(), &models.Case{ID: "case-1"})
	require.Error(t, err)

	var noStrategy *customErrors.NoStrategyError
	require.ErrorAs(t, err, &noStrategy)
	assert.Equal(t, "case-1", noStrategy.CaseID)
}

func TestExecuteNextActionSubmitsFirstUnsubmittedPayer(t *testing.T) {
	co, _ := newTestCoordinator(t, gateway.ScenarioHappyPath, &stubDrafter{})
	c := baseCase("United Healthcare", "Anthem")

	delta, err := co.ExecuteNextAction(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, constants.ActionSubmission, delta.ActionType)
	assert.Equal(t, "United Healthcare", delta.TargetPayer)

	state := delta.PayerStates["United Healthcare"]
	require.NotNil(t, state)
	assert.Equal(t, models.StatusSubmitted, state.Status)
	assert.Regexp(t, `^UHC-\d{8}-[0-9a-f]{8}$`, state.Reference)

	// The second payer is untouched and the input case is not mutated.
	_, ok := delta.PayerStates["Anthem"]
	assert.False(t, ok)
	assert.Empty(t, c.PayerStates)
}

func TestExecuteNextActionMonitorsFullyProgressedCase(t *testing.T) {
	co, _ := newTestCoordinator(t, gateway.ScenarioHappyPath, &stubDrafter{})
	c := baseCase("United Healthcare")
	c.PayerStates = map[string]*models.PayerState{
		"United Healthcare": {
			PayerName: "United Healthcare",
			Status:    models.StatusUnderReview,
			Reference: "UHC-20260830-deadbeef",
		},
	}

	delta, err := co.ExecuteNextAction(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, constants.ActionMonitoring, delta.ActionType)
	assert.Nil(t, delta.PayerStates)
}

func TestCheckPayerStatusRequiresReference(t *testing.T) {
	co, _ := newTestCoordinator(t, gateway.ScenarioHappyPath, &stubDrafter{})
	c := baseCase("Cigna")

	_, err := co.CheckPayerStatus(context.Background(), c, "Cigna")
	require.Error(t, err)

	var noRef *customErrors.NoReferenceError
	require.ErrorAs(t, err, &noRef)
	assert.Equal(t, "Cigna", noRef.Payer)
}

func TestCheckPayerStatusFoldsDenial(t *testing.T) {
	co, registry := newTestCoordinator(t, gateway.ScenarioPrimaryDenial, &stubDrafter{})
	c := baseCase("United Healthcare")

	resp, err := registry.Lookup("United Healthcare").SubmitPA(context.Background(), models.NewPASubmission(c))
	require.NoError(t, err)
	c.PayerStates = map[string]*models.PayerState{
		"United Healthcare": {
			PayerName: "United Healthcare",
			Status:    models.StatusSubmitted,
			Reference: resp.Reference,
		},
	}

	delta, err := co.CheckPayerStatus(context.Background(), c, "United Healthcare")
	require.NoError(t, err)

	state := delta.PayerStates["United Healthcare"]
	require.NotNil(t, state)
	assert.Equal(t, models.StatusDenied, state.Status)
	assert.NotEmpty(t, state.DenialReason)
	require.NotNil(t, state.AppealDeadline)
	assert.True(t, delta.RecoveryNeeded)

	// Original case still reports submitted.
	assert.Equal(t, models.StatusSubmitted, c.State("United Healthcare").Status)
}

func TestCheckPayerStatusGatewayErrorBecomesDelta(t *testing.T) {
	co, _ := newTestCoordinator(t, gateway.ScenarioHappyPath, &stubDrafter{})
	c := baseCase("Cigna")
	c.PayerStates = map[string]*models.PayerState{
		"Cigna": {PayerName: "Cigna", Status: models.StatusSubmitted, Reference: "CIG-20260830-aaaaaaaa"},
	}

	delta, err := co.CheckPayerStatus(context.Background(), c, "Cigna")
	require.NoError(t, err, "gateway failures surface inside the delta, not as errors")
	assert.Equal(t, constants.ActionError, delta.ActionType)
	assert.NotEmpty(t, delta.Error)
	assert.Nil(t, delta.PayerStates)
}

func TestExecuteRecoveryActionNoDenial(t *testing.T) {
	co, _ := newTestCoordinator(t, gateway.ScenarioHappyPath, &stubDrafter{})
	c := baseCase("United Healthcare")

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, constants.ActionRecovery, delta.ActionType)
	assert.Equal(t, []string{"No denial found for recovery"}, delta.Messages)
	assert.Nil(t, delta.PayerStates)
}

func TestExecuteRecoveryActionUnrecoverableDenial(t *testing.T) {
	co, registry := newTestCoordinator(t, gateway.ScenarioPrimaryDenial, &stubDrafter{})
	c := deniedCase(t, registry, "Cigna", "requested medication not covered under current formulary", true)

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, constants.ActionCaseComplete, delta.ActionType)
	assert.True(t, delta.CaseComplete)
	assert.Equal(t, "no_recovery_path", delta.Outcome)
	assert.Equal(t, models.StatusNoRecoveryPath, delta.PayerStates["Cigna"].Status)

	// The original case still shows the denial.
	assert.Equal(t, models.StatusDenied, c.State("Cigna").Status)
}

func TestExecuteRecoveryActionSchedulesPeerToPeer(t *testing.T) {
	co, registry := newTestCoordinator(t, gateway.ScenarioPrimaryDenial, &stubDrafter{})
	c := deniedCase(t, registry, "United Healthcare",
		"medical necessity criteria not met per policy UM-2024.14", true)

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, constants.ActionRecovery, delta.ActionType)
	assert.Equal(t, models.StatusP2PScheduled, delta.PayerStates["United Healthcare"].Status)
	require.NotEmpty(t, delta.CompletedActions)
	assert.Contains(t, delta.CompletedActions[0].Detail, "peer-to-peer scheduled")
}

func TestExecuteRecoveryActionEscalatesAfterPeerToPeer(t *testing.T) {
	co, registry := newTestCoordinator(t, gateway.ScenarioRecoverySuccess, &stubDrafter{err: errors.New("unavailable")})
	c := deniedCase(t, registry, "United Healthcare",
		"medical necessity criteria not met per policy UM-2024.14", true)
	c.History = []models.CompletedAction{{
		ActionType: constants.ActionRecovery,
		Payer:      "United Healthcare",
		Detail:     "peer-to-peer scheduled for 2026-08-28T10:00:00Z (confirmation UHC-P2P-0042)",
	}}

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAppealSubmitted, delta.PayerStates["United Healthcare"].Status)
}

func TestExecuteRecoveryActionDocumentChase(t *testing.T) {
	co, registry := newTestCoordinator(t, gateway.ScenarioRecoverySuccess, &stubDrafter{})
	c := deniedCase(t, registry, "Anthem",
		"documentation incomplete: missing recent lab results", false)
	c.PayerStates["Anthem"].RequiredDocs = []string{"recent lab results", "prior treatment history"}

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, constants.ActionRecovery, delta.ActionType)
	assert.True(t, delta.RecoveryNeeded, "document chase leaves the recovery flag raised for the follow-up poll")
	require.NotEmpty(t, delta.CompletedActions)
	assert.Contains(t, delta.CompletedActions[0].Detail, "chased 2 document(s)")
	assert.Empty(t, delta.PayerStates["Anthem"].RequiredDocs)
}

func TestExecuteRecoveryActionAppealWithGeneratedLetter(t *testing.T) {
	drafter := &stubDrafter{strategy: &models.AppealStrategy{
		PrimaryArgument:    "Policy criteria are met",
		AppealType:         "first_level",
		SuccessProbability: 0.7,
	}}
	co, registry := newTestCoordinator(t, gateway.ScenarioRecoverySuccess, drafter)
	c := deniedCase(t, registry, "United Healthcare", "request denied per internal review", true)

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 1, drafter.calls)
	state := delta.PayerStates["United Healthcare"]
	require.NotNil(t, state)
	assert.Equal(t, models.StatusAppealSubmitted, state.Status)
	assert.Contains(t, state.AppealRef, "-APL")
	assert.NotContains(t, state.Reference, "-APL", "the original reference stays in place for polling")
}

func TestExecuteRecoveryActionAppealFallsBackToBoilerplate(t *testing.T) {
	drafter := &stubDrafter{err: errors.New("generation service unavailable")}
	co, registry := newTestCoordinator(t, gateway.ScenarioRecoverySuccess, drafter)
	c := deniedCase(t, registry, "United Healthcare", "request denied per internal review", true)

	delta, err := co.ExecuteRecoveryAction(context.Background(), c)
	require.NoError(t, err, "a failed appeal draft degrades, it does not fail the workflow")

	assert.Equal(t, models.StatusAppealSubmitted, delta.PayerStates["United Healthcare"].Status)

	var degraded bool
	for _, msg := range delta.Messages {
		if msg == "Appeal strategy generation unavailable; submitted boilerplate appeal" {
			degraded = true
		}
	}
	assert.True(t, degraded)
}

package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prior-auth/paw-app/paw/models"
)

func deniedState(reason, code string, deadline *time.Time) *models.PayerState {
	return &models.PayerState{
		PayerName:      "UHC",
		Status:         models.StatusDenied,
		Reference:      "UHC-20260830-deadbeef",
		DenialReason:   reason,
		DenialCode:     code,
		AppealDeadline: deadline,
	}
}

func TestClassifyDenialTypes(t *testing.T) {
	deadline := time.Now().Add(30 * 24 * time.Hour)
	tests := []struct {
		name     string
		reason   string
		expected models.DenialType
	}{
		{"medical necessity phrase", "does not meet medical necessity criteria per policy", models.DenialMedicalNecessity},
		{"medically necessary wording", "treatment is not medically necessary for this diagnosis", models.DenialMedicalNecessity},
		{"step therapy", "step therapy requirements not met", models.DenialStepTherapy},
		{"first-line therapy", "failure of first-line therapy not documented", models.DenialStepTherapy},
		{"authorization expired", "prior authorization expired before date of service", models.DenialPriorAuthExpired},
		{"not covered", "requested drug is not covered under the pharmacy benefit", models.DenialNotCovered},
		{"formulary keyword", "non-formulary medication requested", models.DenialNotCovered},
		{"documentation incomplete", "documentation incomplete: missing recent lab results", models.DenialDocsIncomplete},
		{"additional information", "additional information required to complete review", models.DenialDocsIncomplete},
		{"missing keyword", "missing TB screening results", models.DenialDocsIncomplete},
		{"unmatched reason", "request denied per internal review", models.DenialOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &models.Case{ID: "case-1"}
			got := Classify(deniedState(tt.reason, "", &deadline), c)
			assert.Equal(t, tt.expected, got.DenialType)
		})
	}
}

// A specific multi-word phrase must win even when the text also contains a
// generic keyword mapped to a different type.
func TestClassifySpecificPhraseBeatsGenericKeyword(t *testing.T) {
	c := &models.Case{ID: "case-1"}

	// "incomplete" alone maps to documentation, but the medical necessity
	// phrase appears first in the rule order.
	got := Classify(deniedState("medical necessity review found incomplete evidence of efficacy", "", nil), c)
	assert.Equal(t, models.DenialMedicalNecessity, got.DenialType)

	// "expired" alone maps to prior auth expiry; "step therapy" must win.
	got = Classify(deniedState("step therapy documentation expired", "", nil), c)
	assert.Equal(t, models.DenialStepTherapy, got.DenialType)
}

func TestClassifyUsesDenialCode(t *testing.T) {
	c := &models.Case{ID: "case-1"}
	got := Classify(deniedState("request denied", "ST01 step therapy", nil), c)
	assert.Equal(t, models.DenialStepTherapy, got.DenialType)
}

func TestRecoverability(t *testing.T) {
	deadline := time.Now().Add(30 * 24 * time.Hour)
	c := &models.Case{ID: "case-1"}

	tests := []struct {
		name        string
		reason      string
		deadline    *time.Time
		recoverable bool
	}{
		{"not covered is final even with deadline", "medication not covered by plan", &deadline, false},
		{"docs incomplete without deadline", "documentation incomplete", nil, true},
		{"expired auth without deadline", "prior authorization expired", nil, true},
		{"medical necessity with deadline", "lacks medical necessity", &deadline, true},
		{"medical necessity without deadline", "lacks medical necessity", nil, false},
		{"other without deadline", "denied per internal review", nil, false},
		{"other with deadline", "denied per internal review", &deadline, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(deniedState(tt.reason, "", tt.deadline), c)
			assert.Equal(t, tt.recoverable, got.IsRecoverable)
		})
	}
}

func TestRootCauseLinksToPolicyCriterion(t *testing.T) {
	c := &models.Case{
		ID: "case-2",
		PolicyCriteria: []models.PolicyCriterion{
			{ID: "crit-1", Name: "Documented methotrexate failure", Met: false},
			{ID: "crit-2", Name: "Moderate to severe disease activity", Met: true},
		},
	}

	got := Classify(deniedState("methotrexate trial not documented", "", nil), c)
	assert.Equal(t, "crit-1", got.LinkedPolicyC)
	assert.Empty(t, got.LinkedGapID)
}

func TestRootCauseFallsBackToGapHeuristic(t *testing.T) {
	c := &models.Case{
		ID: "case-3",
		Gaps: []models.DocumentationGap{
			{ID: "gap-1", Category: "tb screening", Description: "TB screening older than 12 months"},
		},
	}

	got := Classify(deniedState("missing current tb screening results", "", nil), c)
	assert.Equal(t, "gap-1", got.LinkedGapID)
	assert.Empty(t, got.LinkedPolicyC)
}

func TestUrgency(t *testing.T) {
	deadline := time.Now().Add(30 * 24 * time.Hour)

	standard := &models.Case{
		ID:      "case-4",
		Patient: models.Patient{Diagnoses: []models.Diagnosis{{ICD10Code: "M05.79", Description: "Rheumatoid arthritis"}}},
	}
	got := Classify(deniedState("lacks medical necessity", "", &deadline), standard)
	assert.Equal(t, models.UrgencyStandard, got.Urgency)

	flagged := &models.Case{
		ID:      "case-5",
		Patient: models.Patient{Diagnoses: []models.Diagnosis{{ICD10Code: "M05.79", Description: "Rheumatoid arthritis", IsUrgent: true}}},
	}
	got = Classify(deniedState("lacks medical necessity", "", &deadline), flagged)
	assert.Equal(t, models.UrgencyUrgent, got.Urgency)

	active := &models.Case{
		ID:      "case-6",
		Patient: models.Patient{Diagnoses: []models.Diagnosis{{ICD10Code: "A15.0", Description: "Active tuberculosis"}}},
	}
	got = Classify(deniedState("lacks medical necessity", "", &deadline), active)
	assert.Equal(t, models.UrgencyUrgent, got.Urgency)
}

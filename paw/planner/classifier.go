package planner

import (
	"strings"

	"github.com/prior-auth/paw-app/paw/models"
)

// denialRule maps a phrase found in denial text to a denial type. Rules are
// evaluated in order, multi-word phrases ahead of single generic keywords,
// so a generic keyword never shadows a specific phrase.
type denialRule struct {
	phrase     string
	denialType models.DenialType
}

var denialRules = []denialRule{
	// Multi-word phrases first.
	{"medical necessity", models.DenialMedicalNecessity},
	{"medically necessary", models.DenialMedicalNecessity},
	{"step therapy", models.DenialStepTherapy},
	{"first-line therapy", models.DenialStepTherapy},
	{"authorization expired", models.DenialPriorAuthExpired},
	{"not covered", models.DenialNotCovered},
	{"documentation incomplete", models.DenialDocsIncomplete},
	{"additional information", models.DenialDocsIncomplete},
	// Single generic keywords last.
	{"formulary", models.DenialNotCovered},
	{"excluded", models.DenialNotCovered},
	{"expired", models.DenialPriorAuthExpired},
	{"missing", models.DenialDocsIncomplete},
	{"incomplete", models.DenialDocsIncomplete},
}

// gapKeywords key the fallback gap-linking heuristic on category keywords.
var gapKeywords = []string{"tb", "screening", "step"}

// Classify determines the denial category, recoverability, root cause and
// urgency for a denial in the context of its case. The result is derived
// fresh on every call and never persisted.
func Classify(state *models.PayerState, c *models.Case) models.DenialClassification {
	text := strings.ToLower(strings.TrimSpace(state.DenialReason + " " + state.DenialCode))

	denialType := models.DenialOther
	for _, rule := range denialRules {
		if strings.Contains(text, rule.phrase) {
			denialType = rule.denialType
			break
		}
	}

	classification := models.DenialClassification{
		DenialType:    denialType,
		IsRecoverable: recoverable(denialType, state),
		RootCause:     rootCause(denialType, state),
		Urgency:       urgency(c),
	}

	classification.LinkedPolicyC, classification.LinkedGapID = linkRootCause(text, c)
	return classification
}

// recoverable: not_covered denials are final; documentation and expiry
// denials are resubmission-eligible and do not require an appeal deadline;
// everything else needs a deadline to appeal against.
func recoverable(t models.DenialType, state *models.PayerState) bool {
	if t == models.DenialNotCovered {
		return false
	}
	if t == models.DenialDocsIncomplete || t == models.DenialPriorAuthExpired {
		return true
	}
	return state.AppealDeadline != nil
}

func rootCause(t models.DenialType, state *models.PayerState) string {
	switch t {
	case models.DenialMedicalNecessity:
		return "Payer determined the clinical evidence does not establish medical necessity"
	case models.DenialDocsIncomplete:
		return "Submission lacked documentation the payer requires for review"
	case models.DenialStepTherapy:
		return "Payer requires documented failure of first-line therapy before approval"
	case models.DenialPriorAuthExpired:
		return "A previously granted authorization lapsed before treatment"
	case models.DenialNotCovered:
		return "Requested medication is outside the member's benefit coverage"
	default:
		return "Denial reason did not match a known category: " + state.DenialReason
	}
}

// linkRootCause prefers structured policy criteria over the gap heuristic;
// the first match wins and absence leaves both links empty.
func linkRootCause(denialText string, c *models.Case) (policyCriterionID, gapID string) {
	denialTokens := tokens(denialText)

	for _, criterion := range c.PolicyCriteria {
		for word := range tokens(strings.ToLower(criterion.Name)) {
			if _, ok := denialTokens[word]; ok {
				return criterion.ID, ""
			}
		}
	}

	for _, gap := range c.Gaps {
		category := strings.ToLower(gap.Category)
		for _, keyword := range gapKeywords {
			if strings.Contains(category, keyword) && strings.Contains(denialText, keyword) {
				return "", gap.ID
			}
		}
	}

	return "", ""
}

// tokens splits text into words longer than 3 characters.
func tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	}) {
		if len(w) > 3 {
			out[w] = struct{}{}
		}
	}
	return out
}

func urgency(c *models.Case) models.UrgencyLevel {
	for _, d := range c.Patient.Diagnoses {
		if d.IsUrgent || strings.Contains(strings.ToLower(d.Description), "active") {
			return models.UrgencyUrgent
		}
	}
	return models.UrgencyStandard
}

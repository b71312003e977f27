package planner

import (
	"fmt"
	"sort"

	"github.com/prior-auth/paw-app/paw/constants"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/models"
)

// GenerateOptions emits the recovery option catalog for a classified denial,
// sorted descending by score with the top option flagged recommended. When
// more than one payer remains workable in the case's sequence, a low-scored
// pivot option is always appended.
func GenerateOptions(classification models.DenialClassification, c *models.Case, payer string) []models.RecoveryOption {
	var options []models.RecoveryOption

	switch classification.DenialType {
	case models.DenialDocsIncomplete:
		options = append(options,
			models.RecoveryOption{
				ID:    constants.OptionChaseDocuments,
				Name:  "Chase missing documentation",
				Score: 8.5,
				ActionPlan: []string{
					"Identify each document the payer flagged as missing",
					"Request records from the ordering provider",
					"Submit the documents against the existing reference",
				},
				SuccessProbability: 0.85,
				Pros:               []string{"Directly addresses the stated denial reason", "No new submission required"},
				Cons:               []string{"Turnaround depends on provider responsiveness"},
			},
			models.RecoveryOption{
				ID:    constants.OptionParallelRecovery,
				Name:  "Chase documents while preparing an appeal in parallel",
				Score: 6.0,
				ActionPlan: []string{
					"Start the document chase",
					"Draft an appeal letter concurrently",
					"Submit whichever path completes first",
				},
				SuccessProbability: 0.80,
				Pros:               []string{"Hedges against a slow document chase"},
				Cons:               []string{"Duplicates effort if the documents resolve the denial"},
			})
	case models.DenialMedicalNecessity:
		options = append(options,
			models.RecoveryOption{
				ID:    constants.OptionPeerToPeer,
				Name:  "Request peer-to-peer review",
				Score: 8.0,
				ActionPlan: []string{
					"Collect prescriber availability",
					"Schedule the call with the payer medical director",
					"Prepare clinical talking points",
				},
				SuccessProbability: 0.65,
				Pros:               []string{"Fastest route to overturn a clinical judgment", "Direct prescriber advocacy"},
				Cons:               []string{"Requires prescriber time", "Outcome depends on the reviewing director"},
			},
			models.RecoveryOption{
				ID:    constants.OptionWrittenAppeal,
				Name:  "Submit a written appeal",
				Score: 7.5,
				ActionPlan: []string{
					"Draft an appeal citing policy criteria and clinical evidence",
					"Attach supporting documentation",
					"Submit before the appeal deadline",
				},
				SuccessProbability: 0.55,
				Pros:               []string{"Creates a reviewable paper trail"},
				Cons:               []string{"Slowest determination path"},
			})
	case models.DenialStepTherapy:
		options = append(options,
			models.RecoveryOption{
				ID:    constants.OptionDocumentStepTherapy,
				Name:  "Document completed step therapy",
				Score: 7.0,
				ActionPlan: []string{
					"Compile records of first-line therapies tried and failed",
					"Submit the step-therapy history against the existing reference",
				},
				SuccessProbability: 0.75,
				Pros:               []string{"Resolves the denial on its own terms"},
				Cons:               []string{"Only works if steps were actually completed"},
			},
			models.RecoveryOption{
				ID:    constants.OptionStepTherapyException,
				Name:  "Request a step therapy exception",
				Score: 6.5,
				ActionPlan: []string{
					"Document clinical contraindication to first-line therapy",
					"Submit an exception request with prescriber attestation",
				},
				SuccessProbability: 0.50,
				Pros:               []string{"Available when steps were skipped for clinical reasons"},
				Cons:               []string{"Higher evidentiary bar"},
			})
	case models.DenialPriorAuthExpired:
		options = append(options,
			models.RecoveryOption{
				ID:    constants.OptionResubmitFresh,
				Name:  "Resubmit a fresh prior authorization",
				Score: 7.5,
				ActionPlan: []string{
					"Rebuild the submission from current case data",
					"Submit as a new request",
				},
				SuccessProbability: 0.90,
				Pros:               []string{"Clean slate with current clinical data"},
				Cons:               []string{"Restarts the payer's review clock"},
			})
	default:
		options = append(options,
			models.RecoveryOption{
				ID:    constants.OptionWrittenAppeal,
				Name:  "Submit a written appeal",
				Score: 5.0,
				ActionPlan: []string{
					"Draft a general appeal addressing the stated reason",
					"Submit before the appeal deadline",
				},
				SuccessProbability: 0.40,
				Pros:               []string{"Applicable to any appealable denial"},
				Cons:               []string{"Unfocused without a specific denial category"},
			})
	}

	if workablePayers(c) > 1 {
		options = append(options, models.RecoveryOption{
			ID:    constants.OptionPivotToNextPayer,
			Name:  "Pivot to the next payer in sequence",
			Score: 3.0,
			ActionPlan: []string{
				"Abandon recovery with the denying payer",
				"Submit to the next payer in the case strategy",
			},
			SuccessProbability: 0.50,
			Pros:               []string{"Avoids sinking effort into a resistant payer"},
			Cons:               []string{"Forfeits progress with the current payer"},
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Score > options[j].Score
	})
	if len(options) > 0 {
		options[0].IsRecommended = true
	}
	return options
}

// workablePayers counts payers in the sequence not yet in a terminal state.
func workablePayers(c *models.Case) int {
	count := 0
	for _, payer := range c.PayerSequence {
		if !c.State(payer).Status.Terminal() {
			count++
		}
	}
	return count
}

// SelectStrategy picks the highest-scored option. Only the parallel-recovery
// option runs its actions concurrently.
func SelectStrategy(options []models.RecoveryOption, c *models.Case) (*models.RecoveryStrategy, error) {
	if len(options) == 0 {
		return nil, &customErrors.NoOptionsError{CaseID: c.ID}
	}

	top := options[0]
	return &models.RecoveryStrategy{
		Option: top,
		Reasoning: fmt.Sprintf("Selected %s: highest scored option (%.1f) with %.0f%% estimated success",
			top.ID, top.Score, top.SuccessProbability*100),
		ParallelActions:   top.ID == constants.OptionParallelRecovery,
		EscalationTrigger: "no payer determination within 14 days",
	}, nil
}

package planner

import (
	"context"

	"github.com/prior-auth/paw-app/log"
	"github.com/prior-auth/paw-app/paw/client"
	"github.com/prior-auth/paw-app/paw/models"
)

// AppealPlanner drives appeal-strategy generation through the external
// text-generation service. Generation failures are not recovered here; they
// propagate so the coordinator can decide to degrade to a boilerplate
// appeal instead of blocking the workflow.
type AppealPlanner struct {
	drafter client.Drafter
	catalog *PolicyCatalog
}

func NewAppealPlanner(drafter client.Drafter, catalog *PolicyCatalog) *AppealPlanner {
	return &AppealPlanner{drafter: drafter, catalog: catalog}
}

// GenerateAppealStrategy loads applicable policy text for the payer and
// medication, invokes the generation service with the denial context, and
// maps its structured output into an AppealStrategy.
func (a *AppealPlanner) GenerateAppealStrategy(ctx context.Context, state *models.PayerState,
	c *models.Case, payer string) (*models.AppealStrategy, error) {

	policyText, sections := a.catalog.Lookup(payer, c.Medication.Name)

	var docs []string
	for _, gap := range c.Gaps {
		if gap.Resolved {
			docs = append(docs, gap.Description)
		}
	}

	req := client.AppealDraftRequest{
		DenialReason:  state.DenialReason,
		DenialCode:    state.DenialCode,
		Submission:    models.NewPASubmission(c),
		Documentation: docs,
		Patient:       c.Patient,
		PolicyText:    policyText,
	}

	strategy, err := a.drafter.DraftAppeal(ctx, req)
	if err != nil {
		log.Planner.WithError(err).Warnf("Appeal strategy generation failed for case %s payer %s", c.ID, payer)
		return nil, err
	}

	if len(strategy.PolicySections) == 0 {
		strategy.PolicySections = sections
	}

	log.Planner.Infof("Generated appeal strategy for case %s payer %s (type %s, %.0f%% estimated success)",
		c.ID, payer, strategy.AppealType, strategy.SuccessProbability*100)
	return strategy, nil
}

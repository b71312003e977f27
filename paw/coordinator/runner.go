package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/prior-auth/paw-app/paw/constants"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/models"
	"github.com/prior-auth/paw-app/paw/monitoring"
)

// recoveryDocumentChase executes a two-step chase plan through the action
// queue: submit the outstanding documents, then verify the payer's status
// once the submission has succeeded. Transient gateway failures are retried
// with exponential backoff before the step is given up.
func (co *Coordinator) recoveryDocumentChase(ctx context.Context, c *models.Case, payer string,
	state *models.PayerState, strategy *models.RecoveryStrategy) *models.Delta {

	docs := outstandingDocuments(state, c)

	queue := models.NewActionQueue()
	chaseID := uuid.NewRandom().String()
	verifyID := uuid.NewRandom().String()
	queue.Enqueue(models.ActionRequest{
		ID:         chaseID,
		ActionType: constants.ActionDocumentChase,
		Payer:      payer,
		Priority:   1,
		Params:     map[string]interface{}{"documents": docs},
	})
	queue.Enqueue(models.ActionRequest{
		ID:         verifyID,
		ActionType: constants.ActionStatusCheck,
		Payer:      payer,
		Priority:   2,
		DependsOn:  []string{chaseID},
	})

	updated, messages, err := co.drainQueue(ctx, c, queue, state, docs)
	if err != nil {
		return co.errorDelta(constants.ActionRecovery, payer, err)
	}

	states := c.ClonePayerStates()
	states[payer] = updated

	return &models.Delta{
		ActionType:  constants.ActionRecovery,
		TargetPayer: payer,
		PayerStates: states,
		// Document-chase recovery leaves the recovery flag raised until a
		// later status check observes the payer's fresh determination.
		RecoveryNeeded: true,
		CompletedActions: []models.CompletedAction{
			completed(constants.ActionRecovery, payer,
				fmt.Sprintf("chased %d document(s) and verified status", len(docs))),
		},
		Messages: append([]string{strategy.Reasoning}, messages...),
	}
}

// drainQueue runs queued actions to completion, retrying retry-eligible
// failures. Each action's result feeds dependency resolution for the rest of
// the plan.
func (co *Coordinator) drainQueue(ctx context.Context, c *models.Case, queue *models.ActionQueue,
	state *models.PayerState, docs []string) (*models.PayerState, []string, error) {

	current := state
	var messages []string

	for !queue.Idle() {
		action, ok := queue.Next()
		if !ok {
			return nil, nil, errors.Errorf("action plan stalled for case %s: no eligible action", c.ID)
		}

		var resp *models.PAResponse
		op := func() error {
			var opErr error
			resp, opErr = co.runQueuedAction(ctx, action, current, docs)
			if opErr == nil {
				return nil
			}
			var netErr *customErrors.NetworkError
			if errors.As(opErr, &netErr) {
				return opErr
			}
			return backoff.Permanent(opErr)
		}

		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
		err := backoff.Retry(op, bo)

		result := models.ActionResult{
			ActionID:    action.ID,
			Success:     err == nil,
			CompletedAt: time.Now(),
		}
		if err != nil {
			var netErr *customErrors.NetworkError
			result.RetryEligible = errors.As(err, &netErr)
			queue.Complete(result)
			return nil, nil, errors.Wrapf(err, "action %s (%s) failed", action.ID, action.ActionType)
		}
		result.Response = map[string]interface{}{"status": resp.Status, "message": resp.Message}
		queue.Complete(result)

		current, _ = applyResponse(current, resp)
		if action.ActionType == constants.ActionDocumentChase {
			current.RequiredDocs = nil
			messages = append(messages,
				fmt.Sprintf("Submitted %d document(s) to %s", len(docs), action.Payer))
		} else {
			messages = append(messages,
				fmt.Sprintf("Verified status with %s: %s", action.Payer, current.Status))
		}
	}

	return current, messages, nil
}

func (co *Coordinator) runQueuedAction(ctx context.Context, action models.ActionRequest,
	state *models.PayerState, docs []string) (*models.PAResponse, error) {

	gw := co.registry.Lookup(action.Payer)
	closeChild := monitoring.NewChild(ctx, "gateway:"+action.ActionType)
	defer closeChild()

	switch action.ActionType {
	case constants.ActionDocumentChase:
		return gw.SubmitDocuments(ctx, state.Reference, docs)
	case constants.ActionStatusCheck:
		return gw.CheckStatus(ctx, state.Reference)
	default:
		return nil, errors.Errorf("unsupported queued action type %q", action.ActionType)
	}
}

// composeLetter renders a generated appeal strategy as the letter body sent
// to the payer.
func composeLetter(appeal *models.AppealStrategy) string {
	var b strings.Builder
	b.WriteString(appeal.PrimaryArgument)
	for _, arg := range appeal.SupportingArguments {
		b.WriteString("\n\n")
		b.WriteString(arg)
	}
	if len(appeal.PolicySections) > 0 {
		b.WriteString("\n\nApplicable policy sections: ")
		b.WriteString(strings.Join(appeal.PolicySections, "; "))
	}
	if len(appeal.Citations) > 0 {
		b.WriteString("\n\nReferences: ")
		b.WriteString(strings.Join(appeal.Citations, "; "))
	}
	return b.String()
}

package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth/paw-app/log"
	"github.com/prior-auth/paw-app/paw/constants"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/gateway"
	"github.com/prior-auth/paw-app/paw/models"
	"github.com/prior-auth/paw-app/paw/monitoring"
	"github.com/prior-auth/paw-app/paw/planner"
)

// boilerplateAppeal is the minimal letter substituted when appeal-strategy
// generation fails. The workflow degrades rather than blocks.
const boilerplateAppeal = "We respectfully appeal the denial of the requested medication. " +
	"The prescribing provider maintains that this therapy is medically necessary for the patient's " +
	"condition. Supporting clinical documentation is available upon request, and we ask that the " +
	"determination be reconsidered."

// Coordinator drives a case through per-payer submission state. It never
// mutates the caller's case; every operation returns a Delta built from
// cloned sub-state.
type Coordinator struct {
	registry *gateway.Registry
	appeals  *planner.AppealPlanner
	logger   logrus.FieldLogger
}

func New(registry *gateway.Registry, appeals *planner.AppealPlanner) *Coordinator {
	return &Coordinator{
		registry: registry,
		appeals:  appeals,
		logger:   log.API,
	}
}

// ExecuteNextAction determines and executes exactly one next action for the
// case: the first payer awaiting submission is submitted, the first payer
// pending information gets a document chase, and a fully progressed case
// yields a monitoring delta. Callers re-invoke repeatedly; there is no
// internal loop.
func (co *Coordinator) ExecuteNextAction(ctx context.Context, c *models.Case) (*models.Delta, error) {
	if len(c.PayerSequence) == 0 {
		return nil, &customErrors.NoStrategyError{CaseID: c.ID}
	}

	ctx, end := monitoring.NewParent(ctx, "coordinator:ExecuteNextAction")
	defer end()

	for _, payer := range c.PayerSequence {
		if c.State(payer).Status == models.StatusNotSubmitted {
			return co.submit(ctx, c, payer), nil
		}
	}
	for _, payer := range c.PayerSequence {
		if c.State(payer).Status == models.StatusPendingInfo {
			return co.chaseDocuments(ctx, c, payer), nil
		}
	}

	return &models.Delta{
		ActionType: constants.ActionMonitoring,
		Messages:   []string{"All payers have progressed past submission; monitoring for determinations"},
	}, nil
}

// CheckPayerStatus polls the gateway for a payer's current determination and
// folds the response into an updated state snapshot.
func (co *Coordinator) CheckPayerStatus(ctx context.Context, c *models.Case, payer string) (*models.Delta, error) {
	state := c.State(payer)
	if state.Reference == "" {
		return nil, &customErrors.NoReferenceError{CaseID: c.ID, Payer: payer}
	}

	ctx, end := monitoring.NewParent(ctx, "coordinator:CheckPayerStatus")
	defer end()

	closeChild := monitoring.NewChild(ctx, "gateway:check_status")
	resp, err := co.registry.Lookup(payer).CheckStatus(ctx, state.Reference)
	closeChild()
	if err != nil {
		return co.errorDelta(constants.ActionStatusCheck, payer, err), nil
	}

	updated, note := applyResponse(state, resp)
	states := c.ClonePayerStates()
	states[payer] = updated

	delta := &models.Delta{
		ActionType:  constants.ActionStatusCheck,
		TargetPayer: payer,
		PayerStates: states,
		CompletedActions: []models.CompletedAction{
			completed(constants.ActionStatusCheck, payer, resp.Message),
		},
		Messages: []string{fmt.Sprintf("Status for %s: %s", payer, updated.Status)},
	}
	if note != "" {
		delta.Messages = append(delta.Messages, note)
	}
	if updated.Status == models.StatusDenied && updated.AppealDeadline != nil {
		delta.RecoveryNeeded = true
		delta.Messages = append(delta.Messages,
			fmt.Sprintf("Denial from %s is appealable until %s", payer,
				updated.AppealDeadline.Format("2006-01-02")))
	}
	return delta, nil
}

// ExecuteRecoveryAction locates the first denied payer, classifies the
// denial, and executes the selected recovery strategy. An unrecoverable
// denial terminates the case with a no-recovery outcome.
func (co *Coordinator) ExecuteRecoveryAction(ctx context.Context, c *models.Case) (*models.Delta, error) {
	ctx, end := monitoring.NewParent(ctx, "coordinator:ExecuteRecoveryAction")
	defer end()

	var payer string
	for _, p := range c.PayerSequence {
		if c.State(p).Status == models.StatusDenied {
			payer = p
			break
		}
	}
	if payer == "" {
		return &models.Delta{
			ActionType: constants.ActionRecovery,
			Messages:   []string{"No denial found for recovery"},
		}, nil
	}

	state := c.State(payer)
	classification := planner.Classify(state, c)
	co.logger.WithFields(logrus.Fields{
		"case_id":     c.ID,
		"payer":       payer,
		"denial_type": classification.DenialType,
		"recoverable": classification.IsRecoverable,
	}).Info("classified denial")

	if !classification.IsRecoverable {
		states := c.ClonePayerStates()
		states[payer] = states[payer].Clone()
		states[payer].Status = models.StatusNoRecoveryPath
		states[payer].LastUpdated = time.Now()
		return &models.Delta{
			ActionType:   constants.ActionCaseComplete,
			TargetPayer:  payer,
			PayerStates:  states,
			CaseComplete: true,
			Outcome:      "no_recovery_path",
			CompletedActions: []models.CompletedAction{
				completed(constants.ActionRecovery, payer,
					fmt.Sprintf("denial type %s is not recoverable", classification.DenialType)),
			},
			Messages: []string{fmt.Sprintf("Denial from %s (%s) has no recovery path; case closed",
				payer, classification.DenialType)},
		}, nil
	}

	options := planner.GenerateOptions(classification, c, payer)
	strategy, err := planner.SelectStrategy(options, c)
	if err != nil {
		return co.errorDelta(constants.ActionRecovery, payer, err), nil
	}
	co.logger.Infof("case %s payer %s: %s", c.ID, payer, strategy.Reasoning)

	switch strategy.Option.ID {
	case constants.OptionPeerToPeer:
		// A denial that persists after a completed peer-to-peer review
		// escalates to the written appeal instead of scheduling another call.
		if p2pAlreadyScheduled(c, payer) {
			return co.submitAppeal(ctx, c, payer, state, strategy, classification), nil
		}
		return co.scheduleP2P(ctx, c, payer, state, strategy), nil
	case constants.OptionChaseDocuments:
		// Likewise a denial that survives a completed document chase.
		if chaseAlreadyRun(c, payer) {
			return co.submitAppeal(ctx, c, payer, state, strategy, classification), nil
		}
		return co.recoveryDocumentChase(ctx, c, payer, state, strategy), nil
	default:
		// Written appeal is the default path for every other option,
		// including the pivot option: pivoting only changes future
		// payer-sequence traversal.
		return co.submitAppeal(ctx, c, payer, state, strategy, classification), nil
	}
}

// submit builds a fresh submission value object and sends it through the
// payer's gateway.
func (co *Coordinator) submit(ctx context.Context, c *models.Case, payer string) *models.Delta {
	submission := models.NewPASubmission(c)

	closeChild := monitoring.NewChild(ctx, "gateway:submit_pa")
	resp, err := co.registry.Lookup(payer).SubmitPA(ctx, submission)
	closeChild()
	if err != nil {
		return co.errorDelta(constants.ActionSubmission, payer, err)
	}

	status, _ := models.MapResponseStatus(resp.Status)
	states := c.ClonePayerStates()
	states[payer] = &models.PayerState{
		PayerName:      payer,
		Status:         status,
		Reference:      resp.Reference,
		ResponseDetail: responseDetail(resp),
		LastUpdated:    time.Now(),
	}

	return &models.Delta{
		ActionType:  constants.ActionSubmission,
		TargetPayer: payer,
		PayerStates: states,
		CompletedActions: []models.CompletedAction{
			completed(constants.ActionSubmission, payer,
				fmt.Sprintf("submitted as %s", resp.Reference)),
		},
		Messages: []string{
			fmt.Sprintf("Submitted PA to %s (reference %s, expected turnaround %s)",
				payer, resp.Reference, resp.ExpectedTurnaround),
		},
	}
}

// chaseDocuments submits outstanding documents for a pending_info payer, or
// falls back to a status check when nothing is actually outstanding.
func (co *Coordinator) chaseDocuments(ctx context.Context, c *models.Case, payer string) *models.Delta {
	state := c.State(payer)
	docs := outstandingDocuments(state, c)
	if len(docs) == 0 {
		delta, err := co.CheckPayerStatus(ctx, c, payer)
		if err != nil {
			return co.errorDelta(constants.ActionDocumentChase, payer, err)
		}
		return delta
	}

	closeChild := monitoring.NewChild(ctx, "gateway:submit_documents")
	resp, err := co.registry.Lookup(payer).SubmitDocuments(ctx, state.Reference, docs)
	closeChild()
	if err != nil {
		return co.errorDelta(constants.ActionDocumentChase, payer, err)
	}

	updated, _ := applyResponse(state, resp)
	updated.RequiredDocs = nil
	states := c.ClonePayerStates()
	states[payer] = updated

	return &models.Delta{
		ActionType:  constants.ActionDocumentChase,
		TargetPayer: payer,
		PayerStates: states,
		CompletedActions: []models.CompletedAction{
			completed(constants.ActionDocumentChase, payer,
				fmt.Sprintf("submitted %d document(s)", len(docs))),
		},
		Messages: []string{fmt.Sprintf("Submitted %d document(s) to %s; request returned to review",
			len(docs), payer)},
	}
}

func (co *Coordinator) scheduleP2P(ctx context.Context, c *models.Case, payer string,
	state *models.PayerState, strategy *models.RecoveryStrategy) *models.Delta {

	closeChild := monitoring.NewChild(ctx, "gateway:request_peer_to_peer")
	schedule, err := co.registry.Lookup(payer).RequestPeerToPeer(ctx, state.Reference, nil)
	closeChild()
	if err != nil {
		// A declined or failed P2P request never fails the workflow; it
		// degrades to the written appeal path.
		co.logger.WithError(err).Warnf("P2P request declined by %s; degrading to written appeal", payer)
		return co.submitAppeal(ctx, c, payer, state, strategy, planner.Classify(state, c))
	}

	states := c.ClonePayerStates()
	states[payer] = state.Clone()
	states[payer].Status = models.StatusP2PScheduled
	states[payer].LastUpdated = time.Now()

	return &models.Delta{
		ActionType:  constants.ActionRecovery,
		TargetPayer: payer,
		PayerStates: states,
		CompletedActions: []models.CompletedAction{
			completed(constants.ActionRecovery, payer,
				fmt.Sprintf("peer-to-peer scheduled for %s (confirmation %s)",
					schedule.ScheduledTime.Format(time.RFC3339), schedule.ConfirmationCode)),
		},
		Messages: []string{
			fmt.Sprintf("Peer-to-peer review with %s scheduled for %s; reviewer %s, contact %s",
				payer, schedule.ScheduledTime.Format("2006-01-02 15:04"),
				schedule.ReviewerName, schedule.ContactPhone),
			strategy.Reasoning,
		},
	}
}

// submitAppeal drafts and submits a written appeal. Strategy generation
// failures degrade to the boilerplate letter here, in the coordinator; the
// planner never hides them.
func (co *Coordinator) submitAppeal(ctx context.Context, c *models.Case, payer string,
	state *models.PayerState, strategy *models.RecoveryStrategy,
	classification models.DenialClassification) *models.Delta {

	letter := boilerplateAppeal
	var supportingDocs []string
	messages := []string{strategy.Reasoning}

	closeChild := monitoring.NewChild(ctx, "planner:generate_appeal_strategy")
	appeal, err := co.appeals.GenerateAppealStrategy(ctx, state, c, payer)
	closeChild()
	if err != nil {
		co.logger.WithError(err).Warnf("appeal generation failed for case %s; using boilerplate letter", c.ID)
		messages = append(messages, "Appeal strategy generation unavailable; submitted boilerplate appeal")
	} else {
		letter = composeLetter(appeal)
		supportingDocs = appeal.EvidenceToCite
		messages = append(messages, fmt.Sprintf("Appeal drafted (%s, %.0f%% estimated success)",
			appeal.AppealType, appeal.SuccessProbability*100))
	}

	closeChild = monitoring.NewChild(ctx, "gateway:submit_appeal")
	resp, err := co.registry.Lookup(payer).SubmitAppeal(ctx, state.Reference, letter, supportingDocs)
	closeChild()
	if err != nil {
		return co.errorDelta(constants.ActionRecovery, payer, err)
	}

	updated, _ := applyResponse(state, resp)
	updated.AppealRef = resp.Reference
	states := c.ClonePayerStates()
	states[payer] = updated

	return &models.Delta{
		ActionType:  constants.ActionRecovery,
		TargetPayer: payer,
		PayerStates: states,
		CompletedActions: []models.CompletedAction{
			completed(constants.ActionRecovery, payer,
				fmt.Sprintf("appeal %s submitted for %s denial", resp.Reference, classification.DenialType)),
		},
		Messages: append(messages,
			fmt.Sprintf("Appeal submitted to %s as %s", payer, resp.Reference)),
	}
}

func p2pAlreadyScheduled(c *models.Case, payer string) bool {
	return historyHasDetail(c, payer, "peer-to-peer scheduled")
}

func chaseAlreadyRun(c *models.Case, payer string) bool {
	return historyHasDetail(c, payer, "chased ")
}

func historyHasDetail(c *models.Case, payer, prefix string) bool {
	for _, action := range c.History {
		if action.Payer == payer && strings.HasPrefix(action.Detail, prefix) {
			return true
		}
	}
	return false
}

func (co *Coordinator) errorDelta(failedAction, payer string, err error) *models.Delta {
	co.logger.WithError(err).Errorf("action %s failed for payer %s", failedAction, payer)
	return &models.Delta{
		ActionType:  constants.ActionError,
		TargetPayer: payer,
		Error:       err.Error(),
		Messages:    []string{fmt.Sprintf("Action %s against %s failed: %s", failedAction, payer, err)},
	}
}

// applyResponse folds a gateway response into a cloned payer state. A mapped
// status that is not reachable from the current status per the workflow
// graph is rejected, keeping the current status and reporting a note.
func applyResponse(state *models.PayerState, resp *models.PAResponse) (*models.PayerState, string) {
	updated := state.Clone()
	updated.LastUpdated = time.Now()
	updated.ResponseDetail = responseDetail(resp)

	if len(resp.RequiredDocs) > 0 {
		updated.RequiredDocs = append([]string(nil), resp.RequiredDocs...)
	}
	if resp.DenialReason != "" {
		updated.DenialReason = resp.DenialReason
		updated.DenialCode = resp.DenialCode
	}
	if resp.AppealDeadline != nil {
		d := *resp.AppealDeadline
		updated.AppealDeadline = &d
	}

	mapped, known := models.MapResponseStatus(resp.Status)
	note := ""
	if !known {
		note = fmt.Sprintf("Unrecognized payer status %q; holding request under review", resp.Status)
	}
	if !state.Status.CanTransition(mapped) {
		return updated, fmt.Sprintf("Payer reported status %q unreachable from %q; keeping current status",
			mapped, state.Status)
	}
	updated.Status = mapped
	return updated, note
}

func responseDetail(resp *models.PAResponse) map[string]interface{} {
	detail := map[string]interface{}{
		"status":  resp.Status,
		"message": resp.Message,
	}
	if resp.ExpectedTurnaround != "" {
		detail["expected_turnaround"] = resp.ExpectedTurnaround
	}
	if resp.Approval != nil {
		detail["auth_number"] = resp.Approval.AuthNumber
		detail["expires"] = resp.Approval.ExpiresDate
	}
	return detail
}

// outstandingDocuments prefers the payer's explicit required list and falls
// back to unresolved intake gaps.
func outstandingDocuments(state *models.PayerState, c *models.Case) []string {
	if len(state.RequiredDocs) > 0 {
		return append([]string(nil), state.RequiredDocs...)
	}
	var docs []string
	for _, gap := range c.Gaps {
		if !gap.Resolved {
			docs = append(docs, gap.Description)
		}
	}
	return docs
}

func completed(actionType, payer, detail string) models.CompletedAction {
	return models.CompletedAction{
		ActionType: actionType,
		Payer:      payer,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
}

package models

import (
	"sync"
	"time"
)

// DenialType categorizes why a payer denied a request.
type DenialType string

const (
	DenialMedicalNecessity DenialType = "medical_necessity"
	DenialDocsIncomplete   DenialType = "documentation_incomplete"
	DenialStepTherapy      DenialType = "step_therapy"
	DenialPriorAuthExpired DenialType = "prior_auth_expired"
	DenialNotCovered       DenialType = "not_covered"
	DenialOther            DenialType = "other"
)

// UrgencyLevel drives recovery prioritization.
type UrgencyLevel string

const (
	UrgencyStandard UrgencyLevel = "standard"
	UrgencyUrgent   UrgencyLevel = "urgent"
	UrgencyEmergent UrgencyLevel = "emergent"
)

// DenialClassification is derived each time a denial is processed; it is
// never persisted.
type DenialClassification struct {
	DenialType    DenialType   `json:"denial_type"`
	IsRecoverable bool         `json:"is_recoverable"`
	RootCause     string       `json:"root_cause"`
	LinkedGapID   string       `json:"linked_gap_id,omitempty"`
	LinkedPolicyC string       `json:"linked_policy_criterion_id,omitempty"`
	Urgency       UrgencyLevel `json:"urgency"`
}

// RecoveryOption is one candidate path to overturn or work around a denial.
type RecoveryOption struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Score              float64  `json:"score"`
	ActionPlan         []string `json:"action_plan"`
	SuccessProbability float64  `json:"success_probability"`
	Pros               []string `json:"pros,omitempty"`
	Cons               []string `json:"cons,omitempty"`
	IsRecommended      bool     `json:"is_recommended,omitempty"`
}

// RecoveryStrategy is the selected option plus execution context.
type RecoveryStrategy struct {
	Option            RecoveryOption `json:"option"`
	Reasoning         string         `json:"reasoning"`
	ParallelActions   bool           `json:"parallel_actions,omitempty"`
	EscalationTrigger string         `json:"escalation_trigger,omitempty"`
}

// AppealStrategy is the structured output of the text-generation service,
// mapped into the domain.
type AppealStrategy struct {
	PrimaryArgument     string   `json:"primary_argument"`
	SupportingArguments []string `json:"supporting_arguments,omitempty"`
	EvidenceToCite      []string `json:"evidence_to_cite,omitempty"`
	PolicySections      []string `json:"policy_sections,omitempty"`
	Citations           []string `json:"citations,omitempty"`
	AppealType          string   `json:"appeal_type,omitempty"`
	SuccessProbability  float64  `json:"success_probability"`
	SuccessReasoning    string   `json:"success_reasoning,omitempty"`
	Risks               []string `json:"risks,omitempty"`
	Fallbacks           []string `json:"fallbacks,omitempty"`
}

// ActionRequest is a scheduled unit of work. An action becomes eligible only
// when all its dependency ids appear among successful completed results.
type ActionRequest struct {
	ID           string                 `json:"id"`
	ActionType   string                 `json:"action_type"`
	Payer        string                 `json:"payer,omitempty"`
	Priority     int                    `json:"priority"`
	DependsOn    []string               `json:"depends_on,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
	ScheduledFor time.Time              `json:"scheduled_for,omitempty"`
}

// ActionResult records the outcome of an executed action.
type ActionResult struct {
	ActionID        string                 `json:"action_id"`
	Success         bool                   `json:"success"`
	Response        map[string]interface{} `json:"response,omitempty"`
	RetryEligible   bool                   `json:"retry_eligible,omitempty"`
	FollowUpActions []ActionRequest        `json:"follow_up_actions,omitempty"`
	NeedsReview     bool                   `json:"needs_review,omitempty"`
	CompletedAt     time.Time              `json:"completed_at"`
}

// ActionQueue holds pending, in-progress, and completed actions for one
// case. It is safe for concurrent use by parallel recovery actions.
type ActionQueue struct {
	mu         sync.Mutex
	pending    []ActionRequest
	inProgress map[string]ActionRequest
	completed  map[string]ActionResult
}

func NewActionQueue() *ActionQueue {
	return &ActionQueue{
		inProgress: make(map[string]ActionRequest),
		completed:  make(map[string]ActionResult),
	}
}

// Enqueue adds an action to the pending set.
func (q *ActionQueue) Enqueue(a ActionRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, a)
}

// Next pops the highest-priority eligible action and marks it in progress.
// Returns false when nothing is currently eligible.
func (q *ActionQueue) Next() (ActionRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, a := range q.pending {
		if !q.eligible(a) {
			continue
		}
		if best == -1 || a.Priority < q.pending[best].Priority {
			best = i
		}
	}
	if best == -1 {
		return ActionRequest{}, false
	}

	a := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	q.inProgress[a.ID] = a
	return a, true
}

// Complete records the result for an in-progress action. Follow-up actions
// carried on the result are enqueued automatically.
func (q *ActionQueue) Complete(res ActionResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inProgress, res.ActionID)
	q.completed[res.ActionID] = res
	for _, follow := range res.FollowUpActions {
		q.pending = append(q.pending, follow)
	}
}

// Result returns the recorded result for an action id.
func (q *ActionQueue) Result(actionID string) (ActionResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	res, ok := q.completed[actionID]
	return res, ok
}

// Idle reports whether no work remains queued or running.
func (q *ActionQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && len(q.inProgress) == 0
}

// eligible requires every dependency to have completed successfully.
// Caller must hold q.mu.
func (q *ActionQueue) eligible(a ActionRequest) bool {
	for _, dep := range a.DependsOn {
		res, ok := q.completed[dep]
		if !ok || !res.Success {
			return false
		}
	}
	return true
}

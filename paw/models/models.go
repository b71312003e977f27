package models

import (
	"time"

	"github.com/prior-auth/paw-app/paw/constants"
)

// PayerStatus tracks a single payer's position in the authorization workflow.
type PayerStatus string

const (
	StatusNotSubmitted    PayerStatus = "not_submitted"
	StatusSubmitted       PayerStatus = "submitted"
	StatusUnderReview     PayerStatus = "under_review"
	StatusPendingInfo     PayerStatus = "pending_info"
	StatusApproved        PayerStatus = "approved"
	StatusDenied          PayerStatus = "denied"
	StatusP2PScheduled    PayerStatus = "p2p_scheduled"
	StatusAppealSubmitted PayerStatus = "appeal_submitted"
	StatusAppealApproved  PayerStatus = "appeal_approved"
	StatusAppealDenied    PayerStatus = "appeal_denied"
	StatusNoRecoveryPath  PayerStatus = "no_recovery_path"
)

// transitions is the directed graph of allowed status movement. Backward
// movement only happens through the explicit appeal and resubmission edges.
var transitions = map[PayerStatus][]PayerStatus{
	StatusNotSubmitted:    {StatusSubmitted},
	StatusSubmitted:       {StatusPendingInfo, StatusUnderReview, StatusApproved, StatusDenied},
	StatusUnderReview:     {StatusPendingInfo, StatusApproved, StatusDenied},
	StatusPendingInfo:     {StatusSubmitted, StatusUnderReview},
	StatusDenied:          {StatusNoRecoveryPath, StatusP2PScheduled, StatusPendingInfo, StatusAppealSubmitted, StatusSubmitted},
	StatusP2PScheduled:    {StatusAppealSubmitted, StatusApproved, StatusDenied},
	StatusAppealSubmitted: {StatusAppealApproved, StatusAppealDenied},
}

// CanTransition reports whether moving from to next is an allowed edge.
// Self transitions are allowed; a status check often re-reports the
// current determination.
func (s PayerStatus) CanTransition(next PayerStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the payer has reached an end state. A terminal
// payer is abandoned or the case pivots to the next payer in sequence.
func (s PayerStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusAppealApproved, StatusNoRecoveryPath, StatusAppealDenied:
		return true
	}
	return false
}

// ResponseStatus values returned by payer gateways on the wire.
const (
	ResponseSubmitted      = "submitted"
	ResponsePending        = "pending"
	ResponsePendingInfo    = "pending_info"
	ResponseApproved       = "approved"
	ResponseDenied         = "denied"
	ResponseAppealPending  = "appeal_pending"
	ResponseAppealApproved = "appeal_approved"
	ResponseAppealDenied   = "appeal_denied"
)

// responseStatusMap is the fixed mapping from gateway response statuses to
// payer workflow statuses.
var responseStatusMap = map[string]PayerStatus{
	ResponseSubmitted:      StatusSubmitted,
	ResponsePending:        StatusUnderReview,
	ResponsePendingInfo:    StatusPendingInfo,
	ResponseApproved:       StatusApproved,
	ResponseDenied:         StatusDenied,
	ResponseAppealPending:  StatusAppealSubmitted,
	ResponseAppealApproved: StatusAppealApproved,
	ResponseAppealDenied:   StatusAppealDenied,
}

// MapResponseStatus translates a gateway response status into a PayerStatus.
// Unknown statuses leave the payer under review rather than corrupting the
// state machine.
func MapResponseStatus(status string) (PayerStatus, bool) {
	s, ok := responseStatusMap[status]
	if !ok {
		return StatusUnderReview, false
	}
	return s, true
}

// Patient carries the clinical context needed for submissions and appeals.
type Patient struct {
	MemberID        string      `json:"member_id"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	DateOfBirth     string      `json:"date_of_birth"`
	Diagnoses       []Diagnosis `json:"diagnoses,omitempty"`
	PriorTreatments []Treatment `json:"prior_treatments,omitempty"`
	LabResults      []LabResult `json:"lab_results,omitempty"`
}

type Diagnosis struct {
	ICD10Code   string `json:"icd10_code"`
	Description string `json:"description"`
	IsUrgent    bool   `json:"is_urgent,omitempty"`
}

type Treatment struct {
	Medication string `json:"medication"`
	Outcome    string `json:"outcome,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

type LabResult struct {
	TestName  string `json:"test_name"`
	Value     string `json:"value"`
	Collected string `json:"collected,omitempty"`
}

// MedicationRequest describes the therapy awaiting authorization.
type MedicationRequest struct {
	Name              string   `json:"name"`
	HCPCSCode         string   `json:"hcpcs_code,omitempty"`
	ClinicalRationale string   `json:"clinical_rationale,omitempty"`
	DiagnosisCodes    []string `json:"diagnosis_codes,omitempty"`
}

// Prescriber identifies the ordering provider.
type Prescriber struct {
	NPI       string `json:"npi"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Specialty string `json:"specialty,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// DocumentationGap is a piece of missing clinical evidence identified during
// intake. Denials may later be linked back to one of these.
type DocumentationGap struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Resolved    bool   `json:"resolved,omitempty"`
}

// PolicyCriterion is a structured policy-evaluation criterion from a payer's
// coverage policy for the requested medication.
type PolicyCriterion struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Met      bool   `json:"met"`
	Evidence string `json:"evidence,omitempty"`
}

// PayerState is the per-payer submission state. One exists per payer in the
// case's sequence; created on first submission, updated on every status
// check, never deleted.
type PayerState struct {
	PayerName      string                 `json:"payer_name"`
	Status         PayerStatus            `json:"status"`
	Reference      string                 `json:"reference,omitempty"`
	ResponseDetail map[string]interface{} `json:"response_detail,omitempty"`
	RequiredDocs   []string               `json:"required_docs,omitempty"`
	DenialReason   string                 `json:"denial_reason,omitempty"`
	DenialCode     string                 `json:"denial_code,omitempty"`
	AppealRef      string                 `json:"appeal_reference,omitempty"`
	AppealDeadline *time.Time             `json:"appeal_deadline,omitempty"`
	LastUpdated    time.Time              `json:"last_updated"`
}

// Clone returns a deep copy so coordinator mutations never alias the
// caller's snapshot.
func (p *PayerState) Clone() *PayerState {
	if p == nil {
		return nil
	}
	out := *p
	if p.ResponseDetail != nil {
		out.ResponseDetail = make(map[string]interface{}, len(p.ResponseDetail))
		for k, v := range p.ResponseDetail {
			out.ResponseDetail[k] = v
		}
	}
	out.RequiredDocs = append([]string(nil), p.RequiredDocs...)
	if p.AppealDeadline != nil {
		d := *p.AppealDeadline
		out.AppealDeadline = &d
	}
	return &out
}

// CompletedAction is an append-only log entry describing one executed action.
type CompletedAction struct {
	ActionType string    `json:"action_type"`
	Payer      string    `json:"payer,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Case is the aggregate the coordinator operates on. It is owned exclusively
// by the caller; coordinator operations never mutate it in place and instead
// return a Delta to be merged by the owner.
type Case struct {
	ID             string                 `json:"id"`
	Patient        Patient                `json:"patient"`
	Medication     MedicationRequest      `json:"medication"`
	PayerSequence  []string               `json:"payer_sequence"`
	Prescriber     Prescriber             `json:"prescriber"`
	PayerStates    map[string]*PayerState `json:"payer_states,omitempty"`
	Gaps           []DocumentationGap     `json:"documentation_gaps,omitempty"`
	PolicyCriteria []PolicyCriterion      `json:"policy_criteria,omitempty"`
	History        []CompletedAction      `json:"history,omitempty"`
	RecoveryNeeded bool                   `json:"recovery_needed,omitempty"`
	Complete       bool                   `json:"complete,omitempty"`
	Outcome        string                 `json:"outcome,omitempty"`
}

// State returns the tracked state for a payer, or an empty not_submitted
// state when the payer has not been touched yet.
func (c *Case) State(payer string) *PayerState {
	if s, ok := c.PayerStates[payer]; ok {
		return s
	}
	return &PayerState{PayerName: payer, Status: StatusNotSubmitted}
}

// ClonePayerStates deep copies the per-payer state map. Deltas carry a full
// replacement snapshot, not a patch.
func (c *Case) ClonePayerStates() map[string]*PayerState {
	out := make(map[string]*PayerState, len(c.PayerStates))
	for name, state := range c.PayerStates {
		out[name] = state.Clone()
	}
	return out
}

// PASubmission is the value object sent to a payer gateway. Immutable once
// built; constructed fresh per submission attempt from Case data.
type PASubmission struct {
	CaseID            string      `json:"case_id"`
	MemberID          string      `json:"member_id"`
	PatientName       string      `json:"patient_name"`
	MedicationName    string      `json:"medication_name"`
	MedicationCode    string      `json:"medication_code,omitempty"`
	DiagnosisCodes    []string    `json:"diagnosis_codes"`
	PrescriberNPI     string      `json:"prescriber_npi"`
	PrescriberName    string      `json:"prescriber_name"`
	ClinicalRationale string      `json:"clinical_rationale,omitempty"`
	PriorTreatments   []Treatment `json:"prior_treatments,omitempty"`
	LabResults        []LabResult `json:"lab_results,omitempty"`
}

// NewPASubmission builds the submission value object from case data.
func NewPASubmission(c *Case) PASubmission {
	return PASubmission{
		CaseID:            c.ID,
		MemberID:          c.Patient.MemberID,
		PatientName:       c.Patient.FirstName + " " + c.Patient.LastName,
		MedicationName:    c.Medication.Name,
		MedicationCode:    c.Medication.HCPCSCode,
		DiagnosisCodes:    append([]string(nil), c.Medication.DiagnosisCodes...),
		PrescriberNPI:     c.Prescriber.NPI,
		PrescriberName:    c.Prescriber.FirstName + " " + c.Prescriber.LastName,
		ClinicalRationale: c.Medication.ClinicalRationale,
		PriorTreatments:   append([]Treatment(nil), c.Patient.PriorTreatments...),
		LabResults:        append([]LabResult(nil), c.Patient.LabResults...),
	}
}

// ApprovalDetail captures the terms of an approval.
type ApprovalDetail struct {
	EffectiveDate string `json:"effective_date,omitempty"`
	ExpiresDate   string `json:"expires_date,omitempty"`
	AuthNumber    string `json:"auth_number,omitempty"`
	QuantityLimit string `json:"quantity_limit,omitempty"`
}

// PAResponse is returned by every payer gateway operation.
type PAResponse struct {
	Reference          string          `json:"reference"`
	Status             string          `json:"status"`
	Message            string          `json:"message,omitempty"`
	DenialReason       string          `json:"denial_reason,omitempty"`
	DenialCode         string          `json:"denial_code,omitempty"`
	RequiredDocs       []string        `json:"required_docs,omitempty"`
	AppealDeadline     *time.Time      `json:"appeal_deadline,omitempty"`
	NextReviewDate     *time.Time      `json:"next_review_date,omitempty"`
	ExpectedTurnaround string          `json:"expected_turnaround,omitempty"`
	Approval           *ApprovalDetail `json:"approval,omitempty"`
}

// P2PSchedule holds peer-to-peer review scheduling details.
type P2PSchedule struct {
	Reference        string    `json:"reference"`
	ScheduledTime    time.Time `json:"scheduled_time"`
	ReviewerName     string    `json:"reviewer_name"`
	ContactPhone     string    `json:"contact_phone"`
	ConfirmationCode string    `json:"confirmation_code"`
}

// Delta is the immutable state update returned by every coordinator
// operation. Callers merge it into their persisted case record.
type Delta struct {
	ActionType       string                 `json:"action_type"`
	TargetPayer      string                 `json:"target_payer,omitempty"`
	PayerStates      map[string]*PayerState `json:"payer_states,omitempty"`
	CompletedActions []CompletedAction      `json:"completed_actions,omitempty"`
	Messages         []string               `json:"messages,omitempty"`
	RecoveryNeeded   bool                   `json:"recovery_needed,omitempty"`
	CaseComplete     bool                   `json:"case_complete,omitempty"`
	Outcome          string                 `json:"outcome,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// Apply merges the delta into a copy of the supplied case and returns it.
// The input case is not modified.
func (d *Delta) Apply(c *Case) *Case {
	out := *c
	out.PayerStates = c.ClonePayerStates()
	out.History = append(append([]CompletedAction(nil), c.History...), d.CompletedActions...)
	if d.PayerStates != nil {
		out.PayerStates = d.PayerStates
	}
	if d.RecoveryNeeded {
		out.RecoveryNeeded = true
	}
	if d.ActionType == constants.ActionRecovery {
		// An executed recovery clears the pending flag unless the selected
		// path re-raised it (document chase still ends in a resubmission).
		out.RecoveryNeeded = d.RecoveryNeeded
	}
	if d.CaseComplete {
		out.Complete = true
		out.Outcome = d.Outcome
	}
	return &out
}

package constants

const Version = "1.0.0"

// Recovery option identifiers. The coordinator keys its recovery execution
// paths on these, so they are shared between the planner and coordinator.
const (
	OptionPeerToPeer           = "REQUEST_PEER_TO_PEER"
	OptionWrittenAppeal        = "SUBMIT_WRITTEN_APPEAL"
	OptionChaseDocuments       = "CHASE_DOCUMENTS"
	OptionParallelRecovery     = "PARALLEL_RECOVERY"
	OptionDocumentStepTherapy  = "DOCUMENT_STEP_THERAPY"
	OptionStepTherapyException = "STEP_THERAPY_EXCEPTION"
	OptionResubmitFresh        = "RESUBMIT_FRESH_PA"
	OptionPivotToNextPayer     = "PIVOT_TO_NEXT_PAYER"
)

// Action types reported in coordinator deltas.
const (
	ActionSubmission    = "submission"
	ActionDocumentChase = "document_chase"
	ActionStatusCheck   = "status_check"
	ActionRecovery      = "recovery"
	ActionMonitoring    = "monitoring"
	ActionCaseComplete  = "case_complete"
	ActionError         = "error"
)

// Header names used by simulated payer endpoints and the generation service.
const (
	HeaderRequestID = "PAW-Request-Id"
	HeaderOperation = "PAW-Operation"
)

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/prior-auth/paw-app/paw/models"
)

// GenerationDestination is the registered name of the appeal-drafting
// service within the resilient client.
const GenerationDestination = "generation-service"

const draftOperation = "v1/appeals/draft"

// Drafter is the contract the planner depends on for appeal drafting.
type Drafter interface {
	DraftAppeal(ctx context.Context, req AppealDraftRequest) (*models.AppealStrategy, error)
}

// AppealDraftRequest is the input contract of the text-generation service.
type AppealDraftRequest struct {
	DenialReason  string               `json:"denial_reason"`
	DenialCode    string               `json:"denial_code,omitempty"`
	Submission    models.PASubmission  `json:"original_request"`
	Documentation []string             `json:"available_documentation,omitempty"`
	Patient       models.Patient       `json:"patient"`
	PolicyText    string               `json:"policy_text,omitempty"`
}

// appealDraftPayload mirrors the service's loosely-typed output. The
// success_probability field arrives either as a bare float or as a nested
// object carrying estimated_success_rate; it is normalized during mapping.
type appealDraftPayload struct {
	DenialClassification string      `mapstructure:"denial_classification"`
	PrimaryArgument      string      `mapstructure:"primary_argument"`
	SupportingArguments  []string    `mapstructure:"supporting_arguments"`
	EvidenceToCite       []string    `mapstructure:"evidence_to_cite"`
	PolicySections       []string    `mapstructure:"policy_sections"`
	Citations            []string    `mapstructure:"citations"`
	AppealType           string      `mapstructure:"appeal_type"`
	UrgencyJustification string      `mapstructure:"urgency_justification"`
	P2PPoints            []string    `mapstructure:"p2p_points"`
	SuccessProbability   interface{} `mapstructure:"success_probability"`
	SuccessReasoning     string      `mapstructure:"success_reasoning"`
	Risks                []string    `mapstructure:"risks"`
	Fallbacks            []string    `mapstructure:"fallbacks"`
}

// Ensure GenerationClient satisfies the interface
var _ Drafter = &GenerationClient{}

// GenerationClient calls the external text-generation service through the
// resilient client. Failures are not recovered here; the coordinator decides
// whether to degrade to a boilerplate appeal.
type GenerationClient struct {
	caller Caller
}

func NewGenerationClient(caller Caller) *GenerationClient {
	return &GenerationClient{caller: caller}
}

func (g *GenerationClient) DraftAppeal(ctx context.Context, req AppealDraftRequest) (*models.AppealStrategy, error) {
	body, err := g.caller.Call(ctx, GenerationDestination, draftOperation, req)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}

	var payload appealDraftPayload
	if err := mapstructure.Decode(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to map generation response: %w", err)
	}

	strategy := &models.AppealStrategy{
		PrimaryArgument:     payload.PrimaryArgument,
		SupportingArguments: payload.SupportingArguments,
		EvidenceToCite:      payload.EvidenceToCite,
		PolicySections:      payload.PolicySections,
		Citations:           payload.Citations,
		AppealType:          payload.AppealType,
		SuccessProbability:  successProbability(payload.SuccessProbability),
		SuccessReasoning:    payload.SuccessReasoning,
		Risks:               payload.Risks,
		Fallbacks:           payload.Fallbacks,
	}
	return strategy, nil
}

// successProbability accepts a bare float or a nested object with an
// estimated_success_rate field.
func successProbability(v interface{}) float64 {
	switch p := v.(type) {
	case float64:
		return p
	case map[string]interface{}:
		if rate, ok := p["estimated_success_rate"].(float64); ok {
			return rate
		}
	}
	return 0
}

package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/prior-auth/paw-app/log"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/models"
)

// Scenario names selectable per gateway.
const (
	ScenarioHappyPath       = "happy_path"
	ScenarioMissingDocs     = "missing_docs"
	ScenarioPrimaryDenial   = "primary_denial"
	ScenarioRecoverySuccess = "recovery_success"
)

var defaultDenials = []denialReason{
	{"medical necessity criteria not met per policy MN-203.4", "MN04"},
	{"step therapy requirements not met", "ST01"},
	{"documentation incomplete: missing recent lab results", "DOC3"},
}

var missingDocsList = []string{
	"recent lab results (within 90 days)",
	"documentation of prior treatment failures",
	"TB screening results",
}

// submissionRecord tracks the simulated payer's view of one reference.
type submissionRecord struct {
	submission    models.PASubmission
	checks        int
	docsRequested bool
	docsSubmitted bool
	appealed      bool
	appealRef     string
	deniedWith    denialReason
}

// Ensure simulatedGateway satisfies the interface
var _ Gateway = &simulatedGateway{}

// simulatedGateway models payer-specific response patterns behind the
// Gateway contract. Dedicated payers and auto-created generic payers share
// this machinery, parametrized by prefix, turnaround and denial pool.
type simulatedGateway struct {
	payerName  string
	prefix     string
	cfg        Config
	turnaround string
	denials    []denialReason

	mu      sync.Mutex
	records map[string]*submissionRecord
	rng     *rand.Rand
}

func newSimulatedGateway(payerName, prefix string, cfg Config, turnaround string, denials []denialReason) *simulatedGateway {
	if len(denials) == 0 {
		denials = defaultDenials
	}
	return &simulatedGateway{
		payerName:  payerName,
		prefix:     prefix,
		cfg:        cfg,
		turnaround: turnaround,
		denials:    denials,
		records:    make(map[string]*submissionRecord),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *simulatedGateway) SubmitPA(ctx context.Context, submission models.PASubmission) (*models.PAResponse, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return nil, err
	}

	reference := g.newReference()
	g.mu.Lock()
	g.records[reference] = &submissionRecord{submission: submission}
	g.mu.Unlock()

	log.Gateway.Infof("Payer %s accepted PA submission for case %s under reference %s",
		g.payerName, submission.CaseID, reference)

	return &models.PAResponse{
		Reference:          reference,
		Status:             models.ResponseSubmitted,
		Message:            fmt.Sprintf("Prior authorization request received by %s", g.payerName),
		ExpectedTurnaround: g.turnaround,
	}, nil
}

func (g *simulatedGateway) CheckStatus(ctx context.Context, reference string) (*models.PAResponse, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return nil, err
	}
	if err := g.maybeInjectFailure(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[reference]
	if !ok {
		return nil, &customErrors.UpstreamError{
			Err:         errors.Errorf("unknown reference %s", reference),
			Destination: g.payerName,
			StatusCode:  http.StatusNotFound,
		}
	}
	rec.checks++

	switch g.cfg.Scenario {
	case ScenarioMissingDocs:
		return g.missingDocsStatus(reference, rec), nil
	case ScenarioPrimaryDenial:
		return g.denialStatus(reference, rec, false), nil
	case ScenarioRecoverySuccess:
		return g.denialStatus(reference, rec, true), nil
	default:
		return g.happyPathStatus(reference, rec), nil
	}
}

func (g *simulatedGateway) SubmitDocuments(ctx context.Context, reference string, documents []string) (*models.PAResponse, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[reference]
	if !ok {
		return nil, &customErrors.UpstreamError{
			Err:         errors.Errorf("unknown reference %s", reference),
			Destination: g.payerName,
			StatusCode:  http.StatusNotFound,
		}
	}
	rec.docsSubmitted = true

	return &models.PAResponse{
		Reference: reference,
		Status:    models.ResponsePending,
		Message: fmt.Sprintf("%d document(s) received; request returned to clinical review",
			len(documents)),
	}, nil
}

func (g *simulatedGateway) SubmitAppeal(ctx context.Context, reference, letter string, supportingDocs []string) (*models.PAResponse, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[reference]
	if !ok {
		return nil, &customErrors.UpstreamError{
			Err:         errors.Errorf("unknown reference %s", reference),
			Destination: g.payerName,
			StatusCode:  http.StatusNotFound,
		}
	}
	rec.appealed = true
	rec.appealRef = reference + "-APL"

	status := models.ResponseAppealPending
	message := "Appeal received and queued for medical director review"
	// The generous scenarios resolve the appeal inline.
	if g.cfg.Scenario == ScenarioHappyPath || g.cfg.Scenario == ScenarioMissingDocs {
		status = models.ResponseAppealApproved
		message = "Appeal reviewed and approved"
	}

	log.Gateway.Infof("Payer %s recorded appeal %s (%d supporting documents, %d byte letter)",
		g.payerName, rec.appealRef, len(supportingDocs), len(letter))

	return &models.PAResponse{
		Reference: rec.appealRef,
		Status:    status,
		Message:   message,
	}, nil
}

func (g *simulatedGateway) RequestPeerToPeer(ctx context.Context, reference string, availability []time.Time) (*models.P2PSchedule, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return nil, err
	}

	scheduled := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	if len(availability) > 0 {
		scheduled = availability[0]
	}

	g.mu.Lock()
	code := fmt.Sprintf("%s-P2P-%04d", g.prefix, g.rng.Intn(10000))
	reviewer := "Dr. " + randomdata.FullName(randomdata.RandomGender)
	phone := fmt.Sprintf("1-800-%03d-%04d", randomdata.Number(200, 999), randomdata.Number(0, 9999))
	g.mu.Unlock()

	return &models.P2PSchedule{
		Reference:        reference,
		ScheduledTime:    scheduled,
		ReviewerName:     reviewer,
		ContactPhone:     phone,
		ConfirmationCode: code,
	}, nil
}

func (g *simulatedGateway) happyPathStatus(reference string, rec *submissionRecord) *models.PAResponse {
	// Occasional transient info request for realism, resolved by the
	// document chase like any other pending_info.
	if !rec.docsRequested && !rec.docsSubmitted && g.cfg.InfoRequestRate > 0 &&
		g.rng.Float64() < g.cfg.InfoRequestRate {
		rec.docsRequested = true
		return &models.PAResponse{
			Reference:    reference,
			Status:       models.ResponsePendingInfo,
			Message:      "Additional information requested",
			RequiredDocs: missingDocsList[:1],
		}
	}
	if rec.docsRequested && !rec.docsSubmitted {
		return &models.PAResponse{
			Reference:    reference,
			Status:       models.ResponsePendingInfo,
			Message:      "Still awaiting requested information",
			RequiredDocs: missingDocsList[:1],
		}
	}
	return g.approvedResponse(reference)
}

func (g *simulatedGateway) missingDocsStatus(reference string, rec *submissionRecord) *models.PAResponse {
	if !rec.docsSubmitted {
		rec.docsRequested = true
		return &models.PAResponse{
			Reference:    reference,
			Status:       models.ResponsePendingInfo,
			Message:      "Request pended for additional documentation",
			RequiredDocs: append([]string(nil), missingDocsList...),
		}
	}
	return g.approvedResponse(reference)
}

// denialStatus covers the two denial scenarios. With recovers set, an
// appealed request is approved on the next check; otherwise the appeal
// stays pending.
func (g *simulatedGateway) denialStatus(reference string, rec *submissionRecord, recovers bool) *models.PAResponse {
	if rec.appealed {
		if recovers {
			return &models.PAResponse{
				Reference: rec.appealRef,
				Status:    models.ResponseAppealApproved,
				Message:   "Appeal approved following medical director review",
			}
		}
		return &models.PAResponse{
			Reference: rec.appealRef,
			Status:    models.ResponseAppealPending,
			Message:   "Appeal under medical director review",
		}
	}

	if rec.deniedWith.reason == "" {
		rec.deniedWith = g.denials[g.rng.Intn(len(g.denials))]
	}
	deadline := time.Now().Add(30 * 24 * time.Hour)
	return &models.PAResponse{
		Reference:      reference,
		Status:         models.ResponseDenied,
		Message:        "Prior authorization request denied",
		DenialReason:   rec.deniedWith.reason,
		DenialCode:     rec.deniedWith.code,
		AppealDeadline: &deadline,
	}
}

func (g *simulatedGateway) approvedResponse(reference string) *models.PAResponse {
	now := time.Now()
	return &models.PAResponse{
		Reference: reference,
		Status:    models.ResponseApproved,
		Message:   fmt.Sprintf("Prior authorization approved by %s", g.payerName),
		Approval: &models.ApprovalDetail{
			EffectiveDate: now.Format("2006-01-02"),
			ExpiresDate:   now.AddDate(1, 0, 0).Format("2006-01-02"),
			AuthNumber:    fmt.Sprintf("%s-AUTH-%06d", g.prefix, g.rng.Intn(1000000)),
		},
	}
}

// newReference allocates a reference in the form {PREFIX}-{yyyymmdd}-{8 hex}.
func (g *simulatedGateway) newReference() string {
	hex := strings.ReplaceAll(uuid.NewRandom().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", g.prefix, time.Now().Format("20060102"), hex)
}

// simulateLatency models realistic polling delay within the configured
// bounds, honoring context cancellation.
func (g *simulatedGateway) simulateLatency(ctx context.Context) error {
	if g.cfg.MaxLatencyMS <= 0 {
		return nil
	}
	spread := g.cfg.MaxLatencyMS - g.cfg.MinLatencyMS
	if spread < 1 {
		spread = 1
	}
	g.mu.Lock()
	delay := time.Duration(g.cfg.MinLatencyMS+g.rng.Intn(spread)) * time.Millisecond
	g.mu.Unlock()

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *simulatedGateway) maybeInjectFailure() error {
	if g.cfg.TransientFailureRate <= 0 {
		return nil
	}
	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()
	if roll < g.cfg.TransientFailureRate {
		return &customErrors.NetworkError{
			Err:         errors.New("simulated transient payer portal failure"),
			Destination: g.payerName,
			Attempts:    1,
		}
	}
	return nil
}

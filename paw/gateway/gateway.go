package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prior-auth/paw-app/conf"
	"github.com/prior-auth/paw-app/log"
	"github.com/prior-auth/paw-app/paw/models"
)

// Gateway is the capability set surrounding real or simulated payer
// connectivity. Any implementation must satisfy exactly these five
// operations with the documented reference-number and status semantics.
type Gateway interface {
	SubmitPA(ctx context.Context, submission models.PASubmission) (*models.PAResponse, error)
	CheckStatus(ctx context.Context, reference string) (*models.PAResponse, error)
	SubmitDocuments(ctx context.Context, reference string, documents []string) (*models.PAResponse, error)
	SubmitAppeal(ctx context.Context, reference, letter string, supportingDocs []string) (*models.PAResponse, error)
	RequestPeerToPeer(ctx context.Context, reference string, availability []time.Time) (*models.P2PSchedule, error)
}

// Config controls simulated gateway behavior. Fault injection exists for
// demo realism and is off unless explicitly enabled.
type Config struct {
	Scenario             string  `conf:"PAW_GATEWAY_SCENARIO" conf_default:"happy_path"`
	MinLatencyMS         int     `conf:"PAW_GATEWAY_MIN_LATENCY_MS" conf_default:"50"`
	MaxLatencyMS         int     `conf:"PAW_GATEWAY_MAX_LATENCY_MS" conf_default:"400"`
	InfoRequestRate      float64 `conf:"PAW_GATEWAY_INFO_REQUEST_RATE" conf_default:"0"`
	TransientFailureRate float64 `conf:"PAW_GATEWAY_TRANSIENT_FAILURE_RATE" conf_default:"0"`
}

// LoadConfig reads gateway configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	log.Gateway.Info("Successfully loaded configuration for payer gateways.")
	return cfg, nil
}

// namedPayer carries the payer-specific parameters applied when a dedicated
// payer is registered. The same simulated machinery serves every payer.
type namedPayer struct {
	name       string
	prefix     string
	turnaround string
	denials    []denialReason
}

type denialReason struct {
	reason string
	code   string
}

var namedPayers = []namedPayer{
	{
		name:       "United Healthcare",
		prefix:     "UHC",
		turnaround: "5-7 business days",
		denials: []denialReason{
			{"medical necessity criteria not met per policy UM-2024.14", "UM14"},
			{"step therapy requirements not met: first-line therapy not documented", "ST01"},
		},
	},
	{
		name:       "Anthem",
		prefix:     "ANT",
		turnaround: "7-10 business days",
		denials: []denialReason{
			{"documentation incomplete: missing recent lab results", "DOC3"},
			{"medical necessity not established per clinical guideline CG-DRUG-01", "MN01"},
		},
	},
	{
		name:       "Cigna",
		prefix:     "CIG",
		turnaround: "3-5 business days",
		denials: []denialReason{
			{"prior authorization expired; a new request is required", "EXP1"},
			{"requested medication not covered under current formulary", "NC02"},
		},
	},
}

// Registry resolves payer names to gateways. It is owned by the
// coordinator's dependency-injection root and passed by reference; there is
// no hidden module-level cache.
type Registry struct {
	mu       sync.Mutex
	gateways map[string]Gateway
	cfg      Config
}

// NewRegistry creates a registry pre-populated with the dedicated payer
// gateways.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		gateways: make(map[string]Gateway),
		cfg:      cfg,
	}
	for _, p := range namedPayers {
		r.gateways[p.name] = newSimulatedGateway(p.name, p.prefix, cfg, p.turnaround, p.denials)
	}
	return r
}

// Register installs a gateway for a payer, replacing any existing one.
func (r *Registry) Register(payerName string, g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[payerName] = g
}

// Lookup returns the gateway for a payer, transparently creating a generic
// one on first reference so any payer name is automatically serviceable.
func (r *Registry) Lookup(payerName string) Gateway {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gateways[payerName]; ok {
		return g
	}
	g := newSimulatedGateway(payerName, Prefix(payerName), r.cfg, "7-14 business days", nil)
	r.gateways[payerName] = g
	log.Gateway.Infof("Auto-created generic gateway for payer %s with prefix %s", payerName, Prefix(payerName))
	return g
}

// Prefix derives the short uppercase reference prefix for a payer name from
// the leading letters of its first word, e.g. "Acme Health" -> "ACM".
func Prefix(payerName string) string {
	word := payerName
	if i := strings.IndexAny(payerName, " \t"); i > 0 {
		word = payerName[:i]
	}
	var letters []rune
	for _, r := range strings.ToUpper(word) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	if len(letters) == 0 {
		return "PAY"
	}
	return string(letters)
}

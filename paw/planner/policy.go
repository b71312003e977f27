package planner

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/prior-auth/paw-app/conf"
	"github.com/prior-auth/paw-app/log"
)

// PlaceholderPolicyText is used when no policy documentation exists for a
// payer/medication combination.
const PlaceholderPolicyText = "No payer policy documentation available for this medication."

// PolicyDocument is one entry in the payer policy catalog.
type PolicyDocument struct {
	Payer      string   `toml:"payer"`
	Medication string   `toml:"medication"`
	Sections   []string `toml:"sections"`
	Text       string   `toml:"text"`
}

type policyFile struct {
	Policy []PolicyDocument `toml:"policy"`
}

// PolicyCatalog resolves policy text for appeal drafting. Loaded once at
// startup; lookups are read-only.
type PolicyCatalog struct {
	documents []PolicyDocument
}

// defaultPolicies seeds the catalog when no file is configured.
const defaultPolicies = `
[[policy]]
payer = "United Healthcare"
medication = "Adalimumab"
sections = ["UM-2024.14 §3.2", "UM-2024.14 §4.1"]
text = """Coverage requires documented moderate-to-severe disease activity,
failure or intolerance of at least one conventional DMARD, and negative TB
screening within the prior 12 months."""

[[policy]]
payer = "Anthem"
medication = "Adalimumab"
sections = ["CG-DRUG-01 §2"]
text = """Medical necessity is established by documented failure of
first-line therapy and current disease activity scores."""

[[policy]]
payer = "Cigna"
medication = "Etanercept"
sections = ["PH-5402 §1.3"]
text = """Approval requires step therapy completion with methotrexate unless
contraindicated, plus baseline lab work within 90 days."""
`

// LoadPolicyCatalog reads the catalog from PAW_POLICY_CATALOG_FILE when set,
// falling back to the built-in defaults.
func LoadPolicyCatalog() (*PolicyCatalog, error) {
	var parsed policyFile

	if path := conf.GetEnv("PAW_POLICY_CATALOG_FILE"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return nil, err
		}
		log.Planner.Infof("Loaded %d policy documents from %s", len(parsed.Policy), path)
		return &PolicyCatalog{documents: parsed.Policy}, nil
	}

	if err := toml.Unmarshal([]byte(defaultPolicies), &parsed); err != nil {
		return nil, err
	}
	return &PolicyCatalog{documents: parsed.Policy}, nil
}

// Lookup returns the policy text and sections for a payer/medication pair,
// or the placeholder when nothing matches.
func (p *PolicyCatalog) Lookup(payer, medication string) (text string, sections []string) {
	for _, doc := range p.documents {
		if strings.EqualFold(doc.Payer, payer) && strings.EqualFold(doc.Medication, medication) {
			return doc.Text, doc.Sections
		}
	}
	return PlaceholderPolicyText, nil
}

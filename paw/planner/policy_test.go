package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prior-auth/paw-app/conf"
)

func TestLoadPolicyCatalogDefaults(t *testing.T) {
	catalog, err := LoadPolicyCatalog()
	require.NoError(t, err)

	text, sections := catalog.Lookup("United Healthcare", "Adalimumab")
	assert.Contains(t, text, "TB")
	assert.NotEmpty(t, sections)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	catalog, err := LoadPolicyCatalog()
	require.NoError(t, err)

	upper, _ := catalog.Lookup("ANTHEM", "ADALIMUMAB")
	lower, _ := catalog.Lookup("anthem", "adalimumab")
	assert.Equal(t, upper, lower)
	assert.NotEqual(t, PlaceholderPolicyText, upper)
}

func TestLookupFallsBackToPlaceholder(t *testing.T) {
	catalog, err := LoadPolicyCatalog()
	require.NoError(t, err)

	text, sections := catalog.Lookup("Mystery Mutual", "Adalimumab")
	assert.Equal(t, PlaceholderPolicyText, text)
	assert.Empty(t, sections)
}

func TestLoadPolicyCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.toml")
	content := `
[[policy]]
payer = "Acme Health"
medication = "Etanercept"
sections = ["ACME-1 §2"]
text = "Coverage requires prior DMARD failure."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	require.NoError(t, conf.SetEnv(t, "PAW_POLICY_CATALOG_FILE", path))
	defer func() { _ = conf.UnsetEnv(t, "PAW_POLICY_CATALOG_FILE") }()

	catalog, err := LoadPolicyCatalog()
	require.NoError(t, err)

	text, sections := catalog.Lookup("Acme Health", "Etanercept")
	assert.Equal(t, "Coverage requires prior DMARD failure.", text)
	assert.Equal(t, []string{"ACME-1 §2"}, sections)

	// A file-backed catalog replaces the defaults entirely.
	text, _ = catalog.Lookup("United Healthcare", "Adalimumab")
	assert.Equal(t, PlaceholderPolicyText, text)
}

package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetUnsetEnv(t *testing.T) {
	key := "PAW_CONF_TEST_VALUE"

	require.NoError(t, SetEnv(t, key, "from-test"))
	assert.Equal(t, "from-test", GetEnv(key))

	v, ok := LookupEnv(key)
	assert.True(t, ok)
	assert.Equal(t, "from-test", v)

	require.NoError(t, UnsetEnv(t, key))
	assert.Equal(t, "", GetEnv(key))
}

func TestCheckoutDefaults(t *testing.T) {
	type cfg struct {
		Scenario string  `conf:"PAW_CONF_TEST_SCENARIO" conf_default:"happy_path"`
		Retries  int     `conf:"PAW_CONF_TEST_RETRIES" conf_default:"3"`
		Rate     float64 `conf:"PAW_CONF_TEST_RATE" conf_default:"0"`
	}

	var c cfg
	require.NoError(t, Checkout(&c))
	assert.Equal(t, "happy_path", c.Scenario)
	assert.Equal(t, 3, c.Retries)
	assert.Equal(t, 0.0, c.Rate)
}

func TestCheckoutEnvOverridesDefault(t *testing.T) {
	type cfg struct {
		Retries int `conf:"PAW_CONF_TEST_OVERRIDE" conf_default:"3"`
	}

	require.NoError(t, SetEnv(t, "PAW_CONF_TEST_OVERRIDE", "7"))
	defer func() { _ = UnsetEnv(t, "PAW_CONF_TEST_OVERRIDE") }()

	var c cfg
	require.NoError(t, Checkout(&c))
	assert.Equal(t, 7, c.Retries)
}

func TestCheckoutSquash(t *testing.T) {
	type inner struct {
		Timeout int `conf:"PAW_CONF_TEST_TIMEOUT" conf_default:"30"`
	}
	type outer struct {
		Inner inner  `conf:",squash"`
		Name  string `conf:"PAW_CONF_TEST_NAME" conf_default:"paw"`
	}

	var c outer
	require.NoError(t, Checkout(&c))
	assert.Equal(t, 30, c.Inner.Timeout)
	assert.Equal(t, "paw", c.Name)
}

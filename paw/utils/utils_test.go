package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prior-auth/paw-app/conf"
)

func TestGetEnvInt(t *testing.T) {
	assert.Equal(t, 42, GetEnvInt("PAW_UTILS_TEST_UNSET", 42))

	require.NoError(t, conf.SetEnv(t, "PAW_UTILS_TEST_INT", "7"))
	defer func() { _ = conf.UnsetEnv(t, "PAW_UTILS_TEST_INT") }()
	assert.Equal(t, 7, GetEnvInt("PAW_UTILS_TEST_INT", 42))

	require.NoError(t, conf.SetEnv(t, "PAW_UTILS_TEST_INT", "not a number"))
	assert.Equal(t, 42, GetEnvInt("PAW_UTILS_TEST_INT", 42))
}

func TestGetEnvBool(t *testing.T) {
	assert.True(t, GetEnvBool("PAW_UTILS_TEST_UNSET", true))

	require.NoError(t, conf.SetEnv(t, "PAW_UTILS_TEST_BOOL", "false"))
	defer func() { _ = conf.UnsetEnv(t, "PAW_UTILS_TEST_BOOL") }()
	assert.False(t, GetEnvBool("PAW_UTILS_TEST_BOOL", true))

	require.NoError(t, conf.SetEnv(t, "PAW_UTILS_TEST_BOOL", "maybe"))
	assert.True(t, GetEnvBool("PAW_UTILS_TEST_BOOL", true))
}

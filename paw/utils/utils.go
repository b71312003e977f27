package utils

import (
	"strconv"

	"github.com/prior-auth/paw-app/conf"
)

// GetEnvInt returns the configured integer value for varName, or defaultVal
// when unset or unparseable.
func GetEnvInt(varName string, defaultVal int) int {
	if v := conf.GetEnv(varName); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvBool returns the configured boolean value for varName, or defaultVal
// when unset or unparseable.
func GetEnvBool(varName string, defaultVal bool) bool {
	if v := conf.GetEnv(varName); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			"member id in query",
			"/api/v1/cases/case-1/validate?member_id=M12345",
			"/api/v1/cases/case-1/validate?member_id=<redacted>",
		},
		{
			"member id followed by other params",
			"/api/v1/cases?member_id=M12345&payer=uhc",
			"/api/v1/cases?member_id=<redacted>&payer=uhc",
		},
		{
			"nothing to redact",
			"/api/v1/cases/case-1/next-action",
			"/api/v1/cases/case-1/next-action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.uri))
		})
	}
}

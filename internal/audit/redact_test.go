package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditlog "retireplan/pkg/platform/audit"
)

func TestRedact(t *testing.T) {
	r := NewRedactor()

	t.Run("list replaced by count", func(t *testing.T) {
		in := auditlog.Snapshot{
			"email":           "a@example.com",
			"passwordHistory": []any{"h1", "h2", "h3"},
		}
		out := r.Redact(in)

		assert.Equal(t, "[REDACTED: 3 entries]", out["passwordHistory"])
		assert.Equal(t, "a@example.com", out["email"])

		raw, err := json.Marshal(out)
		require.NoError(t, err)
		for _, h := range []string{"h1", "h2", "h3"} {
			assert.NotContains(t, string(raw), h)
		}
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := auditlog.Snapshot{"passwordHistory": []string{"h1"}}
		r.Redact(in)
		assert.Equal(t, []string{"h1"}, in["passwordHistory"])
	})

	t.Run("scalar value replaced", func(t *testing.T) {
		out := r.Redact(auditlog.Snapshot{"passwordHistory": "h1"})
		assert.Equal(t, "[REDACTED]", out["passwordHistory"])
	})

	t.Run("absent field stays absent", func(t *testing.T) {
		out := r.Redact(auditlog.Snapshot{"email": "a@example.com"})
		assert.NotContains(t, out, "passwordHistory")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, r.Redact(nil))
	})

	t.Run("custom fields", func(t *testing.T) {
		custom := NewRedactor("ssn", "passwordHistory")
		out := custom.Redact(auditlog.Snapshot{"ssn": "123", "passwordHistory": []any{}})
		assert.Equal(t, "[REDACTED]", out["ssn"])
		assert.Equal(t, "[REDACTED: 0 entries]", out["passwordHistory"])
	})
}

package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	auditlog "retireplan/pkg/platform/audit"
)

func TestChangeEventValidate(t *testing.T) {
	now := time.Now()
	snap := auditlog.Snapshot{"a": 1}

	assert.NoError(t, Created("e", "p", snap, now).Validate())
	assert.NoError(t, Updated("e", "p", snap, snap, now).Validate())
	assert.NoError(t, Deleted("e", "p", snap, now).Validate())

	assert.Error(t, Created("e", "", snap, now).Validate())
	assert.Error(t, Created("e", "p", nil, now).Validate())
	assert.Error(t, Updated("e", "p", nil, snap, now).Validate())
	assert.Error(t, Deleted("e", "p", nil, now).Validate())
	assert.Error(t, ChangeEvent{Kind: "renamed", Path: "p"}.Validate())
}

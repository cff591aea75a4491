package audit

import (
	"fmt"
	"reflect"

	auditlog "retireplan/pkg/platform/audit"
)

// DefaultRedactedFields are stripped from security record snapshots.
var DefaultRedactedFields = []string{"passwordHistory"}

// Redactor replaces sensitive top-level fields with a placeholder before a
// snapshot is persisted.
type Redactor struct {
	fields map[string]struct{}
}

// NewRedactor builds a Redactor for fields, or DefaultRedactedFields when
// none are given.
func NewRedactor(fields ...string) *Redactor {
	if len(fields) == 0 {
		fields = DefaultRedactedFields
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return &Redactor{fields: set}
}

// Redact returns a shallow copy of s with each sensitive field replaced by
// "[REDACTED: N entries]" for lists or "[REDACTED]" otherwise. s itself is
// not modified; nil stays nil.
func (r *Redactor) Redact(s auditlog.Snapshot) auditlog.Snapshot {
	if s == nil {
		return nil
	}
	out := make(auditlog.Snapshot, len(s))
	for k, v := range s {
		if _, sensitive := r.fields[k]; sensitive {
			out[k] = placeholder(v)
			continue
		}
		out[k] = v
	}
	return out
}

func placeholder(v any) string {
	if v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return fmt.Sprintf("[REDACTED: %d entries]", rv.Len())
		}
	}
	return "[REDACTED]"
}

package audit

import (
	"encoding/json"
	"fmt"
	"sort"

	auditlog "retireplan/pkg/platform/audit"
)

// ChangedFields returns the sorted top-level keys whose values differ
// between before and after. A key present on only one side counts as
// changed. Values are compared by their JSON encoding, so nested changes
// surface as their top-level key and map key order never matters.
func ChangedFields(before, after auditlog.Snapshot) []string {
	changed := []string{}
	for key, bv := range before {
		av, ok := after[key]
		if !ok || canonical(bv) != canonical(av) {
			changed = append(changed, key)
		}
	}
	for key := range after {
		if _, ok := before[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Channels, funcs and cycles can't be encoded; fall back so the
		// comparison stays total.
		return fmt.Sprintf("%T:%#v", v, v)
	}
	return string(b)
}

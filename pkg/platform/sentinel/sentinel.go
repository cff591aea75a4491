package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: document, claim or entry does not exist
//   - ErrConflict: a create hit an existing key
//   - ErrDuplicate: an append carried an ID the store already holds
//   - ErrUnavailable: backing store or broker cannot be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDuplicate   = errors.New("duplicate")
	ErrUnavailable = errors.New("unavailable")
)

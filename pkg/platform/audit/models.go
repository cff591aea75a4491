package audit

import (
	"context"
	"time"
)

// Action is the lifecycle operation an Entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Collection names written into Entry.Collection.
const (
	CollectionScenarios  = "scenarios"
	CollectionAdvisors   = "advisors"
	CollectionSecurity   = "security"
	CollectionAuthClaims = "auth_claims"
)

// Snapshot is the full field-value mapping of a record at one point in time.
// A nil Snapshot means "not applicable" and serializes as null.
type Snapshot map[string]any

// Entry is one immutable audit log record. Stores only ever append entries;
// no store API updates or deletes them.
//
// UserID and UserEmail are derived from the record's own owner fields. They
// are best-effort attribution, not an authenticated caller identity.
type Entry struct {
	ID            string    `json:"id"`
	Action        Action    `json:"action"`
	Collection    string    `json:"collection"`
	DocumentID    string    `json:"documentId"`
	DocumentPath  string    `json:"documentPath"`
	UserID        *string   `json:"userId"`
	UserEmail     *string   `json:"userEmail"`
	Timestamp     time.Time `json:"timestamp"`
	Before        Snapshot  `json:"before"`
	After         Snapshot  `json:"after"`
	ChangedFields []string  `json:"changedFields"`
}

// Query filters reads from the audit log. Zero values mean "no filter";
// results are newest first.
type Query struct {
	Collection   string
	DocumentPath string
	Limit        int
}

// Store is the append-only audit log. Append returns sentinel.ErrDuplicate
// (wrapped) when an entry with the same ID already exists; the existing entry
// is left untouched.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
}

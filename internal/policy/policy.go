// Package policy evaluates document operations against the access rules for
// scenarios, advisors, per-user security records and the audit log.
//
// Evaluation is pure: the caller supplies the verified identity, the target
// path and both the stored and incoming record, and gets back a Decision.
// The only way around these rules is a SystemCapability.
package policy

import (
	"retireplan/pkg/docpath"
	"retireplan/pkg/domain"
	"retireplan/pkg/email"
)

// Op is a document operation.
type Op string

const (
	OpRead   Op = "read"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Owner sentinels a client may stamp on a scenario it submits without an
// advisor account.
const (
	ClientSubmission = "CLIENT_SUBMISSION"
	ClientProgress   = "CLIENT_PROGRESS"
)

// Record field names the rules read.
const (
	FieldAdvisorID           = "advisorId"
	FieldAdvisorEmail        = "advisorEmail"
	FieldAssignedClientEmail = "assignedClientEmail"
)

// Resource kinds a path resolves to.
const (
	ResourceScenario = "scenarios"
	ResourceAdvisor  = "advisors"
	ResourceSecurity = "security"
	ResourceAuditLog = "audit_logs"
)

var resourcePatterns = []struct {
	kind    string
	pattern docpath.Pattern
}{
	{ResourceScenario, docpath.Compile("artifacts/{app}/public/data/scenarios/{id}")},
	{ResourceAdvisor, docpath.Compile("artifacts/{app}/public/data/advisors/{id}")},
	{ResourceSecurity, docpath.Compile("security/users/{hashedEmail}/data")},
	{ResourceAuditLog, docpath.Compile("audit_logs/{id}")},
}

// Request is one operation to authorize. Existing is the stored record (nil
// on create or when absent); Incoming is the proposed record (nil on read
// and delete).
type Request struct {
	Identity domain.Identity
	Op       Op
	Path     string
	Existing map[string]any
	Incoming map[string]any
}

// Decision is the outcome of Authorize. Reason is for logs, never for
// clients.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Evaluator holds the rule configuration.
type Evaluator struct {
	masterEmail string
}

// NewEvaluator creates an Evaluator. masterEmail identifies the single
// privileged operator account.
func NewEvaluator(masterEmail string) *Evaluator {
	return &Evaluator{masterEmail: email.Normalize(masterEmail)}
}

// MasterEmail returns the normalised master address.
func (e *Evaluator) MasterEmail() string { return e.masterEmail }

// IsMaster reports whether id is the master identity: the configured master
// address, or a non-anonymous identity carrying the master role claim.
func (e *Evaluator) IsMaster(id domain.Identity) bool {
	if !id.Authenticated() || id.Anonymous {
		return false
	}
	if e.masterEmail != "" && email.Equal(id.Email, e.masterEmail) {
		return true
	}
	return id.Role == domain.RoleMaster
}

// Resolve returns the resource kind for path, or "" when no rule covers it.
func Resolve(path string) string {
	for _, rp := range resourcePatterns {
		if _, ok := rp.pattern.Match(path); ok {
			return rp.kind
		}
	}
	return ""
}

// Authorize evaluates req. Anything not explicitly allowed is denied.
func (e *Evaluator) Authorize(req Request) Decision {
	if !req.Identity.Authenticated() {
		return deny("unauthenticated")
	}
	switch Resolve(req.Path) {
	case ResourceScenario:
		return e.authorizeScenario(req)
	case ResourceAdvisor:
		return e.authorizeAdvisor(req)
	case ResourceSecurity:
		return deny("security records are system-only")
	case ResourceAuditLog:
		return e.authorizeAuditLog(req)
	default:
		return deny("no rule matches path")
	}
}

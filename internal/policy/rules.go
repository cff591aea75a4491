package policy

import (
	"reflect"

	"retireplan/pkg/email"
)

func (e *Evaluator) authorizeScenario(req Request) Decision {
	id := req.Identity
	switch req.Op {
	case OpRead:
		return allow("authenticated read")

	case OpCreate:
		owner := stringField(req.Incoming, FieldAdvisorID)
		if owner == ClientSubmission || owner == ClientProgress {
			return allow("client submission")
		}
		if id.Anonymous {
			return deny("anonymous identity may only create client submissions")
		}
		if owner != id.UID {
			return deny("advisorId must be the caller's uid")
		}
		if stamped, ok := req.Incoming[FieldAdvisorEmail]; ok {
			s, _ := stamped.(string)
			if !email.Equal(s, id.Email) {
				return deny("advisorEmail must be the caller's email")
			}
		}
		return allow("advisor creating own scenario")

	case OpUpdate:
		if e.isOwner(req) {
			return allow("owner update")
		}
		if e.IsMaster(id) {
			return allow("master update")
		}
		assigned := stringField(req.Existing, FieldAssignedClientEmail)
		if !email.Equal(assigned, id.Email) {
			return deny("caller is not owner, master or assigned client")
		}
		for _, field := range []string{FieldAdvisorID, FieldAdvisorEmail} {
			if !sameValue(req.Existing, req.Incoming, field) {
				return deny("assigned client may not change " + field)
			}
		}
		return allow("assigned client update")

	case OpDelete:
		if e.isOwner(req) {
			return allow("owner delete")
		}
		if e.IsMaster(id) {
			return allow("master delete")
		}
		return deny("only owner or master may delete")
	}
	return deny("unknown operation")
}

func (e *Evaluator) authorizeAdvisor(req Request) Decision {
	if req.Op == OpRead {
		return allow("authenticated read")
	}
	if e.IsMaster(req.Identity) {
		return allow("master write")
	}
	return deny("advisor profiles are master-managed")
}

func (e *Evaluator) authorizeAuditLog(req Request) Decision {
	if req.Op != OpRead {
		return deny("audit log is append-only via system path")
	}
	if e.IsMaster(req.Identity) {
		return allow("master read")
	}
	return deny("audit log is master-only")
}

func (e *Evaluator) isOwner(req Request) bool {
	if req.Identity.Anonymous {
		return false
	}
	owner := stringField(req.Existing, FieldAdvisorID)
	return owner != "" && owner == req.Identity.UID
}

func stringField(record map[string]any, field string) string {
	if record == nil {
		return ""
	}
	s, _ := record[field].(string)
	return s
}

// sameValue treats an absent field and an explicit null alike.
func sameValue(a, b map[string]any, field string) bool {
	return reflect.DeepEqual(a[field], b[field])
}

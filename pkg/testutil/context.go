package testutil

import (
	"net/http"

	"retireplan/pkg/domain"
	"retireplan/pkg/requestcontext"
)

// WithCaller attaches a verified identity to the request, as the bearer
// middleware does after a token checks out.
func WithCaller(req *http.Request, caller domain.Identity) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// Master, Advisor and Anonymous are the identities handler tests act as.
func Master(masterEmail string) domain.Identity {
	return domain.Identity{UID: "master-uid", Email: masterEmail}
}

func Advisor(uid, email string) domain.Identity {
	return domain.Identity{UID: uid, Email: email, Role: domain.RoleAdvisor}
}

func Anonymous(uid string) domain.Identity {
	return domain.Identity{UID: uid, Anonymous: true}
}

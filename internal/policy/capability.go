package policy

import "errors"

// ErrNoServiceAccount is returned when a capability is minted without an
// account name.
var ErrNoServiceAccount = errors.New("system capability requires a service account")

// SystemCapability authorizes writes that bypass Authorize: audit appends,
// security record maintenance and claim changes. It is minted once at process
// start and handed to the components that need it; the zero value grants
// nothing.
type SystemCapability struct {
	account string
}

// NewSystemCapability mints a capability for the named service account.
func NewSystemCapability(serviceAccount string) (SystemCapability, error) {
	if serviceAccount == "" {
		return SystemCapability{}, ErrNoServiceAccount
	}
	return SystemCapability{account: serviceAccount}, nil
}

// Valid reports whether the capability was minted by NewSystemCapability.
func (c SystemCapability) Valid() bool { return c.account != "" }

// Account is the service account name, recorded in logs.
func (c SystemCapability) Account() string { return c.account }

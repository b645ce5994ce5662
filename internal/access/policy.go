// internal/access/policy.go
package access

import (
	"fleetmaint/internal/domainerr"
)

// UserType is the caller category supplied by the authentication layer. It is
// compared exactly: "client" is not CLIENT.
type UserType string

const (
	UserTypeClient   UserType = "CLIENT"
	UserTypeProvider UserType = "PROVIDER"
	UserTypeAdmin    UserType = "ADMIN"
)

// Capability names an action that bypasses ownership checks.
type Capability string

const (
	// DeleteAnyMachine lets a user delete machines they do not own.
	DeleteAnyMachine Capability = "machine:delete:any"
)

// Policy grants capabilities per user type. Types without an explicit entry
// receive the fallback set.
type Policy struct {
	grants   map[UserType]map[Capability]bool
	fallback map[Capability]bool
}

// DefaultPolicy restricts CLIENT users to their own machines and lets every
// other user type act on any machine.
func DefaultPolicy() *Policy {
	return NewPolicy(
		map[UserType][]Capability{UserTypeClient: nil},
		[]Capability{DeleteAnyMachine},
	)
}

// NewPolicy builds a policy from explicit grants and the capabilities given to
// unlisted user types.
func NewPolicy(grants map[UserType][]Capability, fallback []Capability) *Policy {
	p := &Policy{
		grants:   make(map[UserType]map[Capability]bool, len(grants)),
		fallback: toSet(fallback),
	}
	for t, caps := range grants {
		p.grants[t] = toSet(caps)
	}
	return p
}

// Can reports whether userType holds capability c.
func (p *Policy) Can(userType UserType, c Capability) bool {
	if caps, ok := p.grants[userType]; ok {
		return caps[c]
	}
	return p.fallback[c]
}

// AuthorizeMachineDeletion allows owners, and users whose type may delete any
// machine. Everyone else gets ACCESS_DENIED.
func (p *Policy) AuthorizeMachineDeletion(userType UserType, requesterID, ownerID string) error {
	if p.Can(userType, DeleteAnyMachine) {
		return nil
	}
	if requesterID != "" && requesterID == ownerID {
		return nil
	}
	return domainerr.New(domainerr.CodeAccessDenied, "only the owner may delete this machine")
}

func toSet(caps []Capability) map[Capability]bool {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

package domain

import "strings"

// Capability is a named permission resolved by the role lookup collaborator.
type Capability string

const (
	CapabilityNone    Capability = ""
	CapabilityAdmin   Capability = "admin"
	CapabilitySponsor Capability = "sponsor"
)

// TierCapability is the capability of holding one specific sponsor tier.
func TierCapability(tierKey string) Capability {
	return Capability(string(CapabilitySponsor) + ":" + tierKey)
}

// TierKey extracts the tier from a sponsor:<tier> capability.
func (c Capability) TierKey() (string, bool) {
	prefix := string(CapabilitySponsor) + ":"
	if !strings.HasPrefix(string(c), prefix) {
		return "", false
	}
	return strings.TrimPrefix(string(c), prefix), true
}

// Operator is an ops API principal.
type Operator struct {
	Username string
}

// ActorID returns the identity the operator acts under in the lifecycle engine.
func (o Operator) ActorID() string {
	return "operator:" + o.Username
}

package auth

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// RoleLookup answers whether an actor holds a capability.
type RoleLookup interface {
	HasCapability(ctx context.Context, actorID string, capability domain.Capability) (bool, error)
}

// RoleSource lists the platform role ids of a member.
type RoleSource interface {
	MemberRoles(ctx context.Context, userID string) ([]string, error)
}

// MemberRoleLookup maps platform roles onto capabilities: the admin role grants admin,
// a sponsor tier role grants sponsor and sponsor:<tier>.
type MemberRoleLookup struct {
	source      RoleSource
	adminRoleID string
	tiers       domain.TierTable
}

// NewMemberRoleLookup constructs the lookup.
func NewMemberRoleLookup(source RoleSource, adminRoleID string, tiers domain.TierTable) *MemberRoleLookup {
	return &MemberRoleLookup{source: source, adminRoleID: adminRoleID, tiers: tiers}
}

func (l *MemberRoleLookup) HasCapability(ctx context.Context, actorID string, capability domain.Capability) (bool, error) {
	if capability == domain.CapabilityNone {
		return true, nil
	}
	if strings.HasPrefix(actorID, operatorPrefix) {
		return false, nil
	}
	roles, err := l.source.MemberRoles(ctx, actorID)
	if err != nil {
		return false, err
	}
	switch {
	case capability == domain.CapabilityAdmin:
		return l.adminRoleID != "" && contains(roles, l.adminRoleID), nil
	case capability == domain.CapabilitySponsor:
		_, ok := l.tiers.TierForRoles(roles)
		return ok, nil
	}
	if key, ok := capability.TierKey(); ok {
		tier, known := l.tiers.Lookup(key)
		return known && tier.RoleID != "" && contains(roles, tier.RoleID), nil
	}
	return false, nil
}

const operatorPrefix = "operator:"

// OperatorLookup grants admin to ops API operators.
type OperatorLookup struct{}

func (OperatorLookup) HasCapability(_ context.Context, actorID string, capability domain.Capability) (bool, error) {
	if capability == domain.CapabilityNone {
		return true, nil
	}
	return capability == domain.CapabilityAdmin && strings.HasPrefix(actorID, operatorPrefix), nil
}

// ChainLookup grants a capability when any of its lookups does. Errors are returned only
// when no lookup granted the capability.
type ChainLookup []RoleLookup

func (c ChainLookup) HasCapability(ctx context.Context, actorID string, capability domain.Capability) (bool, error) {
	var firstErr error
	for _, lookup := range c {
		ok, err := lookup.HasCapability(ctx, actorID, capability)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

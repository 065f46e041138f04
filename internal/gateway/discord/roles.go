package discord

import (
	"context"
	"fmt"
)

// MemberRoles reads guild member roles; it implements auth.RoleSource.
type MemberRoles struct {
	api     API
	guildID string
}

// NewMemberRoles constructs the role source for guildID.
func NewMemberRoles(api API, guildID string) *MemberRoles {
	return &MemberRoles{api: api, guildID: guildID}
}

func (m *MemberRoles) MemberRoles(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	member, err := m.api.GuildMember(m.guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch guild member %s: %w", userID, err)
	}
	return member.Roles, nil
}

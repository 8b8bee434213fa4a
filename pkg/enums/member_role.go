package enums

import "slices"

// MemberRole is the studio role stored on a member row.
type MemberRole string

const (
	MemberRoleMember  MemberRole = "clan"
	MemberRoleTrainer MemberRole = "trener"
	MemberRoleAdmin   MemberRole = "admin"
)

var memberRoles = []MemberRole{MemberRoleMember, MemberRoleTrainer, MemberRoleAdmin}

func (m MemberRole) String() string { return string(m) }

func (m MemberRole) IsValid() bool { return slices.Contains(memberRoles, m) }

func ParseMemberRole(value string) (MemberRole, error) {
	return parse("member role", value, memberRoles)
}

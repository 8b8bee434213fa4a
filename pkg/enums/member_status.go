package enums

import "slices"

// MemberStatus gates whether a member may sign in and check in.
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "aktivni"
	MemberStatusInactive MemberStatus = "neaktivni"
)

var memberStatuses = []MemberStatus{MemberStatusActive, MemberStatusInactive}

func (m MemberStatus) String() string { return string(m) }

func (m MemberStatus) IsValid() bool { return slices.Contains(memberStatuses, m) }

func ParseMemberStatus(value string) (MemberStatus, error) {
	return parse("member status", value, memberStatuses)
}

package enums

import "slices"

// MembershipStatus is the lifecycle of one paid membership period. Rows use
// both the English and the older local spellings.
type MembershipStatus string

const (
	MembershipStatusActive        MembershipStatus = "active"
	MembershipStatusActiveLegacy  MembershipStatus = "aktivni"
	MembershipStatusPending       MembershipStatus = "pending"
	MembershipStatusExpired       MembershipStatus = "expired"
	MembershipStatusExpiredLegacy MembershipStatus = "istekla"
)

var membershipStatuses = []MembershipStatus{
	MembershipStatusActive,
	MembershipStatusActiveLegacy,
	MembershipStatusPending,
	MembershipStatusExpired,
	MembershipStatusExpiredLegacy,
}

// CurrentMembershipStatuses may be picked as a member's current membership.
var CurrentMembershipStatuses = []MembershipStatus{
	MembershipStatusActive,
	MembershipStatusActiveLegacy,
	MembershipStatusPending,
}

func (m MembershipStatus) String() string { return string(m) }

func (m MembershipStatus) IsValid() bool { return slices.Contains(membershipStatuses, m) }

func (m MembershipStatus) IsActive() bool {
	return m == MembershipStatusActive || m == MembershipStatusActiveLegacy
}

func (m MembershipStatus) IsExpired() bool {
	return m == MembershipStatusExpired || m == MembershipStatusExpiredLegacy
}

func (m MembershipStatus) IsCurrentCandidate() bool {
	return slices.Contains(CurrentMembershipStatuses, m)
}

func ParseMembershipStatus(value string) (MembershipStatus, error) {
	return parse("membership status", value, membershipStatuses)
}

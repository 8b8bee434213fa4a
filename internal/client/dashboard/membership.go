package dashboard

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

const noCode = "NO-CODE"

// SelectCurrent picks the member's current membership: among active and
// pending rows, the latest end date wins, an open end ranking first. Ties fall
// to the later start, then the smaller id. It returns nil when no row qualifies.
func SelectCurrent(rows []gateway.Membership) *gateway.Membership {
	candidates := make([]gateway.Membership, 0, len(rows))
	for _, row := range rows {
		if row.Status.IsCurrentCandidate() {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return ranksBefore(candidates[i], candidates[j])
	})
	current := candidates[0]
	return &current
}

func ranksBefore(a, b gateway.Membership) bool {
	if (a.EndsOn == nil) != (b.EndsOn == nil) {
		return a.EndsOn == nil
	}
	if a.EndsOn != nil && !a.EndsOn.Equal(b.EndsOn.Time) {
		return a.EndsOn.After(b.EndsOn.Time)
	}
	if (a.StartsOn == nil) != (b.StartsOn == nil) {
		return a.StartsOn != nil
	}
	if a.StartsOn != nil && !a.StartsOn.Equal(b.StartsOn.Time) {
		return a.StartsOn.After(b.StartsOn.Time)
	}
	return compareIDs(a.ID, b.ID) < 0
}

func compareIDs(a, b uuid.UUID) int {
	return strings.Compare(a.String(), b.String())
}

// StatusLabel is the display text for a membership status.
func StatusLabel(status enums.MembershipStatus) string {
	switch enums.MembershipStatus(strings.ToLower(string(status))) {
	case enums.MembershipStatusActive, enums.MembershipStatusActiveLegacy:
		return "Aktivna"
	case enums.MembershipStatusPending:
		return "Čeka aktivaciju"
	case enums.MembershipStatusExpired, enums.MembershipStatusExpiredLegacy:
		return "Istekla"
	default:
		return string(status)
	}
}

// CheckInValue is the value encoded in the member's check-in barcode.
func CheckInValue(member *gateway.Member, principal *gateway.Principal) string {
	if member != nil {
		if member.BarcodeValue != nil && strings.TrimSpace(*member.BarcodeValue) != "" {
			return *member.BarcodeValue
		}
		if strings.TrimSpace(member.MemberCode) != "" {
			return member.MemberCode
		}
	}
	if principal != nil && principal.ID != uuid.Nil {
		return principal.ID.String()
	}
	return noCode
}

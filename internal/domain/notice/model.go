package notice

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies which of the two card limit notifications is visible.
type Kind string

const (
	KindCardsHidden       Kind = "cards_hidden"
	KindCardHiddenWarning Kind = "card_hidden_warning"
)

// Profile property keys holding the snooze timestamps (epoch milliseconds).
const (
	PropCardLimitSnoozeUntil         = "focalboard_cardLimitSnoozeUntil"
	PropCardHiddenWarningSnoozeUntil = "focalboard_cardHiddenWarningSnoozeUntil"
)

// RoleSystemAdmin is the role allowed to follow the upgrade link.
const RoleSystemAdmin = "system_admin"

const (
	// SnoozeDuration is how long a dismissed notification stays suppressed.
	SnoozeDuration = 10 * 24 * time.Hour

	// DefaultRecheckInterval is how often a hidden gate re-reads the clock.
	DefaultRecheckInterval = 5 * time.Minute
)

// Telemetry identifiers reported by the gate.
const (
	TelemetryCategory            = "boards"
	TelemetryActionLimitReached  = "limit_CardLimitReached"
	TelemetryActionLimitLinkOpen = "limit_CardLimitLinkOpen"
)

// snoozeProp maps a notification kind to the profile property it snoozes.
func snoozeProp(kind Kind) string {
	if kind == KindCardHiddenWarning {
		return PropCardHiddenWarningSnoozeUntil
	}
	return PropCardLimitSnoozeUntil
}

// ParseKind validates a kind received from a client.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCardsHidden, KindCardHiddenWarning:
		return Kind(s), true
	}
	return "", false
}

// ChangeType classifies a message delivered by a ChangeFeed.
type ChangeType string

const (
	// ChangeUpdated means the profile or board state changed.
	ChangeUpdated ChangeType = "updated"

	// ChangeDismissed means another gate of the same user dismissed Kind.
	ChangeDismissed ChangeType = "dismissed"

	// ChangeRestored means that dismissal failed and Kind may show again.
	ChangeRestored ChangeType = "restored"
)

// Change is a single change feed message.
type Change struct {
	Type ChangeType
	Kind Kind
}

// UserProfile is the subset of the user record the gate needs.
type UserProfile struct {
	ID       string            `json:"id"`
	Username string            `json:"username,omitempty"`
	Roles    []string          `json:"roles"`
	Props    map[string]string `json:"props"`
}

// IsAdmin reports whether the user holds the system admin role.
func (u *UserProfile) IsAdmin() bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == RoleSystemAdmin {
			return true
		}
	}
	return false
}

// Snooze decodes both snooze timestamps from the profile properties.
func (u *UserProfile) Snooze() SnoozeState {
	if u == nil {
		return SnoozeState{}
	}
	return SnoozeState{
		CardLimitUntil:         parseMillis(u.Props[PropCardLimitSnoozeUntil]),
		CardHiddenWarningUntil: parseMillis(u.Props[PropCardHiddenWarningSnoozeUntil]),
	}
}

// ParseRoles splits the space separated role list used on the wire.
func ParseRoles(roles string) []string {
	return strings.Fields(roles)
}

// JoinRoles is the inverse of ParseRoles.
func JoinRoles(roles []string) string {
	return strings.Join(roles, " ")
}

func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SnoozeState holds the two "suppress until" timestamps in epoch milliseconds.
type SnoozeState struct {
	CardLimitUntil         int64 `json:"card_limit_until"`
	CardHiddenWarningUntil int64 `json:"card_hidden_warning_until"`
}

// Until returns the snooze timestamp for the given kind.
func (s SnoozeState) Until(kind Kind) int64 {
	if kind == KindCardHiddenWarning {
		return s.CardHiddenWarningUntil
	}
	return s.CardLimitUntil
}

// BoardVisibility is computed by the board engine for the active board.
type BoardVisibility struct {
	HiddenCards       int  `json:"hidden_cards"`
	CardHiddenWarning bool `json:"card_hidden_warning"`
}

// Snapshot is the read-only input of a single evaluation.
type Snapshot struct {
	User   *UserProfile
	Board  BoardVisibility
	Snooze SnoozeState
}

// Banner describes a visible notification.
type Banner struct {
	Kind        Kind `json:"kind"`
	HiddenCards int  `json:"hidden_cards"`
	CanUpgrade  bool `json:"can_upgrade"`
}

// UserConfigPatch is a partial update of the user's configuration properties.
type UserConfigPatch struct {
	UpdatedFields map[string]string `json:"updatedFields,omitempty"`
	DeletedFields []string          `json:"deletedFields,omitempty"`
}

// VisibilityRequest is the payload of the board visibility ingestion endpoint.
type VisibilityRequest struct {
	HiddenCards       *int `json:"hidden_cards" binding:"required,min=0"`
	CardHiddenWarning bool `json:"card_hidden_warning"`
}

// NoticeResponse is returned by the notice endpoint.
type NoticeResponse struct {
	Visible bool        `json:"visible"`
	Banner  *BannerView `json:"banner,omitempty"`
}

// BannerView is a banner with its localized copy.
type BannerView struct {
	Banner
	Title        string `json:"title"`
	Text         string `json:"text"`
	LinkText     string `json:"link_text,omitempty"`
	CloseTooltip string `json:"close_tooltip"`
}

// DismissRequest names the notification the client closed. An empty kind
// dismisses whichever notification is visible.
type DismissRequest struct {
	Kind string `json:"kind"`
}

// DismissResponse is returned by the dismiss endpoint.
type DismissResponse struct {
	Dismissed Kind `json:"dismissed"`
}

// UpgradeResponse is returned when an admin follows the upgrade link.
type UpgradeResponse struct {
	PricingURL string `json:"pricing_url"`
}

package notice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boardnotice/internal/common"
)

// ServiceConfig holds the tunables of the notice service.
type ServiceConfig struct {
	RecheckInterval time.Duration
	DismissTimeout  time.Duration
	PricingURL      string
}

// Service mounts gates for callers and owns the shared collaborators.
type Service struct {
	profiles ProfileStore
	boards   BoardStateReader
	writer   BoardStateWriter
	snoozer  *Snoozer
	tracker  Tracker
	limiter  DismissLimiter
	peers    Announcer
	now      func() time.Time
	config   ServiceConfig
}

// Deps bundles the collaborators of the notice service.
type Deps struct {
	Profiles ProfileStore
	Boards   BoardStateReader
	Writer   BoardStateWriter
	Users    UserConfigClient
	Tracker  Tracker
	Limiter  DismissLimiter
	Peers    Announcer
	Now      func() time.Time
}

// NewService creates a new notice service.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		profiles: deps.Profiles,
		boards:   deps.Boards,
		writer:   deps.Writer,
		snoozer:  NewSnoozer(deps.Users, deps.Profiles, deps.Now),
		tracker:  deps.Tracker,
		limiter:  deps.Limiter,
		peers:    deps.Peers,
		now:      deps.Now,
		config:   cfg,
	}
}

// OpenGate mounts a gate for userID viewing boardID. The caller must Close it.
func (s *Service) OpenGate(userID, boardID string, pricing PricingLauncher) *Gate {
	return s.openGate(userID, boardID, pricing, false)
}

// openGate mounts a gate; quiet gates serve actions on a banner that was
// reported when it was rendered and do not report limit reached again.
func (s *Service) openGate(userID, boardID string, pricing PricingLauncher, quiet bool) *Gate {
	props := map[string]string{"board_id": boardID}
	if userID != "" {
		props["user_id"] = userID
	}

	return NewGate(GateConfig{
		Source:           NewStoreSource(s.profiles, s.boards, userID, boardID),
		Snoozer:          s.snoozer,
		Tracker:          s.tracker,
		Pricing:          pricing,
		Peers:            s.peers,
		Now:              s.now,
		RecheckInterval:  s.config.RecheckInterval,
		DismissTimeout:   s.config.DismissTimeout,
		TelemetryProps:   props,
		SkipLimitReached: quiet,
	})
}

// Notice evaluates the notification for a single render. With track unset
// the render does not report limit reached, for clients that poll.
func (s *Service) Notice(ctx context.Context, userID, boardID string, track bool) (*Banner, error) {
	gate := s.openGate(userID, boardID, nil, !track)
	defer gate.Close()

	banner, err := gate.Evaluate(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating notice: %w", err)
	}
	return banner, nil
}

// Dismiss snoozes the notification the user closed. When kind is empty it
// snoozes whichever notification is visible and returns an empty kind if
// none is. A named kind that is no longer visible is a conflict.
// The snooze itself completes in the background.
func (s *Service) Dismiss(ctx context.Context, userID, boardID, kind string) (Kind, error) {
	var want Kind
	if kind != "" {
		k, ok := ParseKind(kind)
		if !ok {
			return "", common.NewValidationError(fmt.Sprintf("unknown notification kind %q", kind))
		}
		want = k
	}

	if userID != "" && s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			slog.Error("dismiss limit check failed, proceeding without limit", "user_id", userID, "error", err)
		} else if !allowed {
			return "", common.NewRateLimitError("user " + userID)
		}
	}

	gate := s.openGate(userID, boardID, nil, true)
	defer gate.Close()

	if _, err := gate.Evaluate(ctx); err != nil {
		return "", fmt.Errorf("evaluating notice: %w", err)
	}

	var dismissed Kind
	if want == "" {
		dismissed, _ = gate.Dismiss(ctx)
	} else {
		if _, err := gate.DismissKind(ctx, want); err != nil {
			return "", common.NewConflictError(fmt.Sprintf("notification %s is not showing", want))
		}
		dismissed = want
	}

	if dismissed != "" {
		slog.Info("notice dismissed", "user_id", userID, "board_id", boardID, "kind", dismissed)
	}
	return dismissed, nil
}

// Upgrade follows the upgrade link of the visible notification.
func (s *Service) Upgrade(ctx context.Context, userID, boardID string) (*UpgradeResponse, error) {
	resp := &UpgradeResponse{}
	gate := s.openGate(userID, boardID, func() {
		resp.PricingURL = s.config.PricingURL
	}, true)
	defer gate.Close()

	if _, err := gate.Evaluate(ctx); err != nil {
		return nil, fmt.Errorf("evaluating notice: %w", err)
	}

	if err := gate.OpenUpgrade(ctx); err != nil {
		switch {
		case errors.Is(err, ErrUpgradeUnavailable):
			return nil, common.NewForbiddenError("to access archived cards, contact your admin to upgrade to a paid plan")
		case errors.Is(err, ErrNotShowing):
			return nil, common.NewConflictError("no card limit notification is showing")
		}
		return nil, err
	}

	return resp, nil
}

// SetVisibility records the hidden card values computed by the board engine.
func (s *Service) SetVisibility(ctx context.Context, boardID string, req *VisibilityRequest) error {
	if boardID == "" {
		return common.NewValidationError("board id is required")
	}
	if req.HiddenCards == nil || *req.HiddenCards < 0 {
		return common.NewValidationError("hidden_cards must be zero or greater")
	}

	v := BoardVisibility{HiddenCards: *req.HiddenCards, CardHiddenWarning: req.CardHiddenWarning}
	if err := s.writer.SetVisibility(ctx, boardID, v); err != nil {
		return fmt.Errorf("storing board visibility: %w", err)
	}

	slog.Info("board visibility updated",
		"board_id", boardID,
		"hidden_cards", v.HiddenCards,
		"card_hidden_warning", v.CardHiddenWarning,
	)
	return nil
}

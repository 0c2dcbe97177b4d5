package notice

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"
)

var (
	// ErrNotShowing is returned by actions that need a visible notification.
	ErrNotShowing = errors.New("no notification is showing")

	// ErrUpgradeUnavailable is returned when a non-admin follows the upgrade link.
	ErrUpgradeUnavailable = errors.New("upgrade requires the system admin role")

	// ErrGateClosed is returned by Evaluate after Close.
	ErrGateClosed = errors.New("gate is closed")
)

// State is the visibility state of a gate.
type State string

const (
	StateHidden  State = "hidden"
	StateShowing State = "showing"
)

// GateConfig carries the collaborators of a gate, resolved at construction.
type GateConfig struct {
	Source  SnapshotSource
	Snoozer *Snoozer
	Tracker Tracker
	Pricing PricingLauncher

	// Peers receives this gate's dismissals so the user's other live gates
	// hide the same notification. Optional.
	Peers Announcer

	// Now defaults to time.Now.
	Now func() time.Time

	// RecheckInterval defaults to DefaultRecheckInterval.
	RecheckInterval time.Duration

	// DismissTimeout bounds the background snooze call. Defaults to 15s.
	DismissTimeout time.Duration

	// TelemetryProps are attached to every event the gate reports.
	TelemetryProps map[string]string

	// SkipLimitReached mounts a gate for a one-shot action on a banner that
	// was already reported when it was rendered.
	SkipLimitReached bool
}

// Gate decides which card limit notification is visible for one viewer of
// one board and mediates its dismissal.
//
// While hidden, the gate owns a ticker that advances its time reference so a
// lapsed snooze is noticed; the ticker is released when a notification
// becomes visible and on Close. Changes signals when the caller should call
// Evaluate again.
type Gate struct {
	cfg GateConfig

	mu         sync.Mutex
	now        time.Time
	showing    bool
	kind       Kind
	user       *UserProfile
	banner     *Banner
	optimistic SnoozeState
	stopTimer  chan struct{}
	changes    chan struct{}
	closed     bool
}

// NewGate creates a gate in the hidden state. Call Evaluate to render it.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = DefaultRecheckInterval
	}
	if cfg.DismissTimeout <= 0 {
		cfg.DismissTimeout = 15 * time.Second
	}

	return &Gate{
		cfg:     cfg,
		now:     cfg.Now(),
		changes: make(chan struct{}, 1),
	}
}

// Evaluate reads a fresh snapshot and returns the banner to show, or nil.
// The limit reached event is reported once per transition into the visible state.
func (g *Gate) Evaluate(ctx context.Context) (*Banner, error) {
	snap, err := g.cfg.Source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrGateClosed
	}

	snap.Snooze = mergeSnooze(snap.Snooze, g.optimistic)
	kind, show := Decide(g.now.UnixMilli(), snap)

	entered := show && !g.showing
	g.showing = show
	g.kind = kind
	g.user = snap.User

	var banner *Banner
	if show {
		banner = &Banner{
			Kind:        kind,
			HiddenCards: snap.Board.HiddenCards,
			CanUpgrade:  snap.User.IsAdmin(),
		}
		g.stopTimerLocked()
	} else {
		g.startTimerLocked()
	}
	g.banner = banner
	g.mu.Unlock()

	if entered && !g.cfg.SkipLimitReached {
		g.track(ctx, TelemetryActionLimitReached)
	}

	return banner, nil
}

// Dismiss hides the visible notification immediately and snoozes it in the
// background. It returns the dismissed kind (empty when nothing was showing)
// and a channel closed once the background call has finished.
func (g *Gate) Dismiss(ctx context.Context) (Kind, <-chan struct{}) {
	return g.dismiss(ctx, "")
}

// DismissKind is Dismiss for a notification the caller has seen. It returns
// ErrNotShowing when kind is not the visible notification.
func (g *Gate) DismissKind(ctx context.Context, kind Kind) (<-chan struct{}, error) {
	got, done := g.dismiss(ctx, kind)
	if got == "" {
		return done, ErrNotShowing
	}
	return done, nil
}

func (g *Gate) dismiss(ctx context.Context, want Kind) (Kind, <-chan struct{}) {
	done := make(chan struct{})

	g.mu.Lock()
	if g.closed || !g.showing || (want != "" && g.kind != want) {
		g.mu.Unlock()
		close(done)
		return "", done
	}

	kind, user := g.kind, g.user
	g.showing = false
	g.banner = nil
	if user != nil {
		g.optimistic = setSnooze(g.optimistic, kind, g.cfg.Now().Add(SnoozeDuration).UnixMilli())
	}
	g.startTimerLocked()
	g.mu.Unlock()

	if user == nil || g.cfg.Snoozer == nil {
		close(done)
		return kind, done
	}

	// The snooze outlives the caller's request.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.DismissTimeout)
	go func() {
		defer close(done)
		defer cancel()

		g.announce(dctx, user.ID, Change{Type: ChangeDismissed, Kind: kind})
		_, ok := g.cfg.Snoozer.Snooze(dctx, user, kind)
		if !ok {
			g.announce(dctx, user.ID, Change{Type: ChangeRestored, Kind: kind})
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		if !ok {
			g.optimistic = setSnooze(g.optimistic, kind, 0)
		}
		g.notifyLocked()
	}()

	return kind, done
}

// Suppress hides kind as if this gate had dismissed it, without snoozing.
// It applies a dismissal announced by another gate of the same user.
func (g *Gate) Suppress(kind Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	g.optimistic = setSnooze(g.optimistic, kind, g.cfg.Now().Add(SnoozeDuration).UnixMilli())
	if g.showing && g.kind == kind {
		g.showing = false
		g.banner = nil
		g.startTimerLocked()
	}
}

// Restore drops a suppression of kind after the announcing gate's snooze failed.
func (g *Gate) Restore(kind Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.optimistic = setSnooze(g.optimistic, kind, 0)
}

// OpenUpgrade follows the upgrade link of the visible notification.
// Only system admins get the link.
func (g *Gate) OpenUpgrade(ctx context.Context) error {
	g.mu.Lock()
	showing, user := g.showing, g.user
	g.mu.Unlock()

	if !showing {
		return ErrNotShowing
	}
	if !user.IsAdmin() {
		return ErrUpgradeUnavailable
	}

	if g.cfg.Pricing != nil {
		g.cfg.Pricing()
	}
	g.track(ctx, TelemetryActionLimitLinkOpen)
	return nil
}

// State returns the current visibility state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.showing {
		return StateShowing
	}
	return StateHidden
}

// Banner returns the banner from the last evaluation.
func (g *Gate) Banner() *Banner {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.banner
}

// Changes delivers a signal whenever the gate should be evaluated again.
// It is closed by Close.
func (g *Gate) Changes() <-chan struct{} {
	return g.changes
}

// Close releases the recheck ticker. Pending snoozes still reach the profile
// store but no longer signal the gate.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.stopTimerLocked()
	close(g.changes)
}

func (g *Gate) startTimerLocked() {
	if g.stopTimer != nil || g.closed {
		return
	}

	stop := make(chan struct{})
	g.stopTimer = stop
	ticker := time.NewTicker(g.cfg.RecheckInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				g.mu.Lock()
				select {
				case <-stop:
					g.mu.Unlock()
					return
				default:
				}
				g.now = g.cfg.Now()
				g.notifyLocked()
				g.mu.Unlock()
			}
		}
	}()
}

func (g *Gate) stopTimerLocked() {
	if g.stopTimer == nil {
		return
	}
	close(g.stopTimer)
	g.stopTimer = nil
}

func (g *Gate) timerRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopTimer != nil
}

func (g *Gate) notifyLocked() {
	if g.closed {
		return
	}
	select {
	case g.changes <- struct{}{}:
	default:
	}
}

func (g *Gate) announce(ctx context.Context, userID string, c Change) {
	if g.cfg.Peers == nil {
		return
	}
	if err := g.cfg.Peers.Announce(ctx, userID, c); err != nil {
		slog.Warn("announcing dismissal failed", "user_id", userID, "change", c.Type, "kind", c.Kind, "error", err)
	}
}

func (g *Gate) track(ctx context.Context, action string) {
	if g.cfg.Tracker == nil {
		return
	}
	props := make(map[string]string, len(g.cfg.TelemetryProps))
	maps.Copy(props, g.cfg.TelemetryProps)
	g.cfg.Tracker.TrackEvent(ctx, TelemetryCategory, action, props)
}

func mergeSnooze(a, b SnoozeState) SnoozeState {
	return SnoozeState{
		CardLimitUntil:         max(a.CardLimitUntil, b.CardLimitUntil),
		CardHiddenWarningUntil: max(a.CardHiddenWarningUntil, b.CardHiddenWarningUntil),
	}
}

func setSnooze(s SnoozeState, kind Kind, until int64) SnoozeState {
	if kind == KindCardHiddenWarning {
		s.CardHiddenWarningUntil = until
	} else {
		s.CardLimitUntil = until
	}
	return s
}

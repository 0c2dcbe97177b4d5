package notice

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoard = "board-1"

type gateFixture struct {
	clock    *fakeClock
	profiles *fakeProfiles
	boards   *fakeBoards
	users    *fakeUsers
	tracker  *fakeTracker
	gate     *Gate
	launches int
}

func newGateFixture(t *testing.T, user *UserProfile, vis BoardVisibility, nowMs int64, opts ...func(*GateConfig)) *gateFixture {
	t.Helper()

	f := &gateFixture{
		clock:   newFakeClock(nowMs),
		boards:  newFakeBoards(),
		users:   &fakeUsers{},
		tracker: &fakeTracker{},
	}

	userID := ""
	if user != nil {
		f.profiles = newFakeProfiles(user)
		userID = user.ID
	} else {
		f.profiles = newFakeProfiles()
	}
	f.boards.set(testBoard, vis)

	cfg := GateConfig{
		Source:          NewStoreSource(f.profiles, f.boards, userID, testBoard),
		Snoozer:         NewSnoozer(f.users, f.profiles, f.clock.Now),
		Tracker:         f.tracker,
		Pricing:         func() { f.launches++ },
		Now:             f.clock.Now,
		RecheckInterval: time.Hour,
		DismissTimeout:  time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f.gate = NewGate(cfg)
	t.Cleanup(f.gate.Close)
	return f
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dismiss did not finish")
	}
}

func TestGate_CardsHiddenTakesPriority(t *testing.T) {
	for _, warning := range []bool{false, true} {
		f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 2, CardHiddenWarning: warning}, 5000)

		banner, err := f.gate.Evaluate(context.Background())
		require.NoError(t, err)
		require.NotNil(t, banner, "warning=%v", warning)
		assert.Equal(t, KindCardsHidden, banner.Kind)
		assert.Equal(t, 2, banner.HiddenCards)
		assert.Equal(t, StateShowing, f.gate.State())
	}
}

func TestGate_ShowsWarningWithoutHiddenCards(t *testing.T) {
	user := regularUser()
	user.Props[PropCardHiddenWarningSnoozeUntil] = "4999"
	f := newGateFixture(t, user, BoardVisibility{CardHiddenWarning: true}, 5000)

	banner, err := f.gate.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, banner)
	assert.Equal(t, KindCardHiddenWarning, banner.Kind)
}

func TestGate_HiddenWhileSnoozed(t *testing.T) {
	user := regularUser()
	user.Props[PropCardLimitSnoozeUntil] = "5000"
	f := newGateFixture(t, user, BoardVisibility{HiddenCards: 4}, 5000)

	banner, err := f.gate.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, banner)
	assert.Equal(t, StateHidden, f.gate.State())
}

func TestGate_ScenarioThreeHiddenCards(t *testing.T) {
	cases := []struct {
		name       string
		user       *UserProfile
		canUpgrade bool
	}{
		{name: "admin", user: adminUser(), canUpgrade: true},
		{name: "regular user", user: regularUser(), canUpgrade: false},
		{name: "no user", user: nil, canUpgrade: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGateFixture(t, tc.user, BoardVisibility{HiddenCards: 3}, 1000)

			banner, err := f.gate.Evaluate(context.Background())
			require.NoError(t, err)
			require.NotNil(t, banner)
			assert.Equal(t, Banner{Kind: KindCardsHidden, HiddenCards: 3, CanUpgrade: tc.canUpgrade}, *banner)
		})
	}
}

func TestGate_LimitReachedReportedOncePerTransition(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 1}, 1000)
	ctx := context.Background()

	for range 3 {
		_, err := f.gate.Evaluate(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.tracker.count(TelemetryActionLimitReached))

	// Switching kinds while visible is not a new transition.
	f.boards.set(testBoard, BoardVisibility{CardHiddenWarning: true})
	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, banner)
	assert.Equal(t, KindCardHiddenWarning, banner.Kind)
	assert.Equal(t, 1, f.tracker.count(TelemetryActionLimitReached))

	f.boards.set(testBoard, BoardVisibility{})
	banner, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.Nil(t, banner)

	f.boards.set(testBoard, BoardVisibility{HiddenCards: 1})
	_, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.tracker.count(TelemetryActionLimitReached))
}

func TestGate_TelemetryCarriesConfiguredProps(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 1}, 1000, func(c *GateConfig) {
		c.TelemetryProps = map[string]string{"board_id": testBoard}
	})

	_, err := f.gate.Evaluate(context.Background())
	require.NoError(t, err)
	require.Len(t, f.tracker.props, 1)
	assert.Equal(t, map[string]string{"board_id": testBoard}, f.tracker.props[0])
}

func TestGate_DismissSnoozesCardLimitForTenDays(t *testing.T) {
	const dismissTime = int64(1_700_000_000_000)
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 3}, dismissTime)
	ctx := context.Background()

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)

	kind, done := f.gate.Dismiss(ctx)
	assert.Equal(t, KindCardsHidden, kind)
	assert.Equal(t, StateHidden, f.gate.State(), "hidden before the snooze call resolves")
	waitDone(t, done)

	calls := f.users.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]string{
		PropCardLimitSnoozeUntil: strconv.FormatInt(dismissTime+864000000, 10),
	}, calls[0].UpdatedFields)
	assert.Equal(t, 1, f.profiles.mergeCount())

	stored, err := f.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, dismissTime+864000000, stored.Snooze().CardLimitUntil)

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.Nil(t, banner)
}

func TestGate_DismissWarningLeavesCardLimitUntouched(t *testing.T) {
	user := regularUser()
	user.Props[PropCardLimitSnoozeUntil] = "123"
	user.Props[PropCardHiddenWarningSnoozeUntil] = strconv.FormatInt(5000-1, 10)
	f := newGateFixture(t, user, BoardVisibility{CardHiddenWarning: true}, 5000)
	ctx := context.Background()

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, banner)
	assert.Equal(t, KindCardHiddenWarning, banner.Kind)

	kind, done := f.gate.Dismiss(ctx)
	assert.Equal(t, KindCardHiddenWarning, kind)
	waitDone(t, done)

	calls := f.users.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]string{
		PropCardHiddenWarningSnoozeUntil: strconv.FormatInt(5000+864000000, 10),
	}, calls[0].UpdatedFields)

	stored, err := f.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(123), stored.Snooze().CardLimitUntil)
	assert.Equal(t, int64(5000+864000000), stored.Snooze().CardHiddenWarningUntil)
}

func TestGate_DismissWithoutUserIsNoop(t *testing.T) {
	f := newGateFixture(t, nil, BoardVisibility{HiddenCards: 3}, 1000)
	ctx := context.Background()

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)

	_, done := f.gate.Dismiss(ctx)
	waitDone(t, done)

	assert.Empty(t, f.users.calls())
	assert.Zero(t, f.profiles.mergeCount())

	// Nothing was persisted, so the notification comes back.
	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.NotNil(t, banner)
}

func TestGate_DismissFailureLetsNotificationReappear(t *testing.T) {
	cases := []struct {
		name  string
		users *fakeUsers
	}{
		{name: "request error", users: &fakeUsers{err: errors.New("connection refused")}},
		{name: "no data", users: &fakeUsers{noData: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 3}, 1000)
			f.users = tc.users
			f.gate.cfg.Snoozer = NewSnoozer(tc.users, f.profiles, f.clock.Now)
			ctx := context.Background()

			_, err := f.gate.Evaluate(ctx)
			require.NoError(t, err)

			_, done := f.gate.Dismiss(ctx)
			waitDone(t, done)

			assert.Zero(t, f.profiles.mergeCount())
			banner, err := f.gate.Evaluate(ctx)
			require.NoError(t, err)
			assert.NotNil(t, banner)
		})
	}
}

func TestGate_StaysHiddenWhileSnoozeIsInFlight(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 3}, 1000)
	f.users.block = make(chan struct{})
	ctx := context.Background()

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)

	_, done := f.gate.Dismiss(ctx)

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.Nil(t, banner)

	close(f.users.block)
	waitDone(t, done)
}

func TestGate_DismissWhenNothingShowing(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{}, 1000)

	_, err := f.gate.Evaluate(context.Background())
	require.NoError(t, err)

	kind, done := f.gate.Dismiss(context.Background())
	waitDone(t, done)
	assert.Empty(t, kind)
	assert.Empty(t, f.users.calls())
}

func TestGate_TimerRunsOnlyWhileHidden(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{}, 1000)
	ctx := context.Background()

	assert.False(t, f.gate.timerRunning(), "no timer before the first evaluation")

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, f.gate.timerRunning())

	// Re-evaluating while hidden keeps a single timer.
	_, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.True(t, f.gate.timerRunning())

	f.boards.set(testBoard, BoardVisibility{HiddenCards: 1})
	_, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.False(t, f.gate.timerRunning())

	_, done := f.gate.Dismiss(ctx)
	waitDone(t, done)
	assert.True(t, f.gate.timerRunning())

	f.gate.Close()
	assert.False(t, f.gate.timerRunning())
}

func TestGate_RecheckNoticesLapsedSnooze(t *testing.T) {
	user := regularUser()
	user.Props[PropCardLimitSnoozeUntil] = "2000"
	f := newGateFixture(t, user, BoardVisibility{HiddenCards: 3}, 1000, func(c *GateConfig) {
		c.RecheckInterval = 10 * time.Millisecond
	})
	ctx := context.Background()

	// The gate keeps the time reference captured at construction until a tick.
	f.clock.Set(2001)

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.Nil(t, banner)

	select {
	case <-f.gate.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("recheck timer did not fire")
	}

	banner, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, banner)
	assert.Equal(t, KindCardsHidden, banner.Kind)
	assert.False(t, f.gate.timerRunning())
}

func TestGate_TimeReferenceFrozenUntilTick(t *testing.T) {
	user := regularUser()
	user.Props[PropCardLimitSnoozeUntil] = "2000"
	f := newGateFixture(t, user, BoardVisibility{HiddenCards: 3}, 1000)

	f.clock.Set(5000)

	banner, err := f.gate.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, banner, "evaluation uses the time reference, not the live clock")
}

func TestGate_OpenUpgrade(t *testing.T) {
	t.Run("admin", func(t *testing.T) {
		f := newGateFixture(t, adminUser(), BoardVisibility{HiddenCards: 3}, 1000)
		_, err := f.gate.Evaluate(context.Background())
		require.NoError(t, err)

		require.NoError(t, f.gate.OpenUpgrade(context.Background()))
		assert.Equal(t, 1, f.launches)
		assert.Equal(t, 1, f.tracker.count(TelemetryActionLimitLinkOpen))
	})

	t.Run("regular user", func(t *testing.T) {
		f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 3}, 1000)
		_, err := f.gate.Evaluate(context.Background())
		require.NoError(t, err)

		err = f.gate.OpenUpgrade(context.Background())
		assert.ErrorIs(t, err, ErrUpgradeUnavailable)
		assert.Zero(t, f.launches)
		assert.Zero(t, f.tracker.count(TelemetryActionLimitLinkOpen))
	})

	t.Run("nothing showing", func(t *testing.T) {
		f := newGateFixture(t, adminUser(), BoardVisibility{}, 1000)
		_, err := f.gate.Evaluate(context.Background())
		require.NoError(t, err)

		assert.ErrorIs(t, f.gate.OpenUpgrade(context.Background()), ErrNotShowing)
		assert.Zero(t, f.launches)
	})
}

func TestGate_Close(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 3}, 1000)
	f.users.block = make(chan struct{})
	ctx := context.Background()

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	_, done := f.gate.Dismiss(ctx)

	f.gate.Close()
	f.gate.Close()

	_, ok := <-f.gate.Changes()
	assert.False(t, ok, "changes channel is closed")

	_, err = f.gate.Evaluate(ctx)
	assert.ErrorIs(t, err, ErrGateClosed)

	// The pending snooze still lands in the shared store.
	close(f.users.block)
	waitDone(t, done)
	assert.Equal(t, 1, f.profiles.mergeCount())
}

func TestGate_SnapshotErrorLeavesStateUnchanged(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 3}, 1000)
	_, err := f.gate.Evaluate(context.Background())
	require.NoError(t, err)

	f.boards.err = errors.New("redis down")
	_, err = f.gate.Evaluate(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateShowing, f.gate.State())
}

func TestGate_SkipLimitReached(t *testing.T) {
	f := newGateFixture(t, adminUser(), BoardVisibility{HiddenCards: 3}, 1000, func(c *GateConfig) {
		c.SkipLimitReached = true
	})
	ctx := context.Background()

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, banner)
	assert.Zero(t, f.tracker.count(TelemetryActionLimitReached))

	require.NoError(t, f.gate.OpenUpgrade(ctx))
	assert.Equal(t, 1, f.tracker.count(TelemetryActionLimitLinkOpen))
}

func TestGate_DismissKind(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 1, CardHiddenWarning: true}, 1000)
	ctx := context.Background()

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, KindCardsHidden, banner.Kind)

	done, err := f.gate.DismissKind(ctx, KindCardHiddenWarning)
	require.ErrorIs(t, err, ErrNotShowing)
	waitDone(t, done)
	assert.Equal(t, StateShowing, f.gate.State())
	assert.Empty(t, f.users.calls())

	done, err = f.gate.DismissKind(ctx, KindCardsHidden)
	require.NoError(t, err)
	assert.Equal(t, StateHidden, f.gate.State())
	waitDone(t, done)

	calls := f.users.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UpdatedFields, PropCardLimitSnoozeUntil)
}

func TestGate_DismissAnnouncesToPeers(t *testing.T) {
	feed := newFakeFeed()
	f := newGateFixture(t, regularUser(), BoardVisibility{CardHiddenWarning: true}, 1000, func(c *GateConfig) {
		c.Peers = feed
	})
	ctx := context.Background()

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	_, done := f.gate.Dismiss(ctx)
	waitDone(t, done)
	assert.Equal(t, []Change{{Type: ChangeDismissed, Kind: KindCardHiddenWarning}}, feed.announcements())

	// Bring the warning back and let the next snooze fail.
	f.profiles.mu.Lock()
	f.profiles.users["user-1"].Props = map[string]string{}
	f.profiles.mu.Unlock()
	f.gate.Restore(KindCardHiddenWarning)
	_, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, StateShowing, f.gate.State())
	f.users.mu.Lock()
	f.users.err = errors.New("boom")
	f.users.mu.Unlock()

	_, done = f.gate.Dismiss(ctx)
	waitDone(t, done)
	assert.Equal(t, []Change{
		{Type: ChangeDismissed, Kind: KindCardHiddenWarning},
		{Type: ChangeDismissed, Kind: KindCardHiddenWarning},
		{Type: ChangeRestored, Kind: KindCardHiddenWarning},
	}, feed.announcements())
}

func TestGate_SuppressAndRestore(t *testing.T) {
	f := newGateFixture(t, regularUser(), BoardVisibility{HiddenCards: 4}, 1000)
	ctx := context.Background()

	_, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.False(t, f.gate.timerRunning())

	// A suppression of the other kind leaves the visible banner alone.
	f.gate.Suppress(KindCardHiddenWarning)
	assert.Equal(t, StateShowing, f.gate.State())

	f.gate.Suppress(KindCardsHidden)
	assert.Equal(t, StateHidden, f.gate.State(), "hidden without re-reading the store")
	assert.Nil(t, f.gate.Banner())
	assert.True(t, f.gate.timerRunning())

	banner, err := f.gate.Evaluate(ctx)
	require.NoError(t, err)
	assert.Nil(t, banner)
	assert.Empty(t, f.users.calls(), "suppression does not snooze")

	f.gate.Restore(KindCardsHidden)
	banner, err = f.gate.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, banner)
	assert.Equal(t, KindCardsHidden, banner.Kind)
	assert.Equal(t, 2, f.tracker.count(TelemetryActionLimitReached))
}

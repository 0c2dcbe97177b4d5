package notice

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{t: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.UnixMilli(ms)
}

// fakeProfiles is an in-memory ProfileStore.
type fakeProfiles struct {
	mu     sync.Mutex
	users  map[string]*UserProfile
	merges []map[string]string
	err    error
}

func newFakeProfiles(users ...*UserProfile) *fakeProfiles {
	p := &fakeProfiles{users: map[string]*UserProfile{}}
	for _, u := range users {
		p.users[u.ID] = u
	}
	return p
}

func (p *fakeProfiles) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	cp.Props = maps.Clone(u.Props)
	return &cp, nil
}

func (p *fakeProfiles) MergeProperties(ctx context.Context, userID string, props map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.merges = append(p.merges, maps.Clone(props))
	if u, ok := p.users[userID]; ok {
		if u.Props == nil {
			u.Props = map[string]string{}
		}
		maps.Copy(u.Props, props)
	}
	return nil
}

func (p *fakeProfiles) mergeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.merges)
}

// fakeBoards is an in-memory board state store.
type fakeBoards struct {
	mu     sync.Mutex
	boards map[string]BoardVisibility
	err    error
}

func newFakeBoards() *fakeBoards {
	return &fakeBoards{boards: map[string]BoardVisibility{}}
}

func (b *fakeBoards) set(boardID string, v BoardVisibility) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boards[boardID] = v
}

func (b *fakeBoards) HiddenCardCount(ctx context.Context, boardID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boards[boardID].HiddenCards, b.err
}

func (b *fakeBoards) CardHiddenWarning(ctx context.Context, boardID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boards[boardID].CardHiddenWarning, b.err
}

func (b *fakeBoards) SetVisibility(ctx context.Context, boardID string, v BoardVisibility) error {
	if b.err != nil {
		return b.err
	}
	b.set(boardID, v)
	return nil
}

// fakeUsers records patches and echoes them back merged onto the stored props,
// the way the user config endpoint does.
type fakeUsers struct {
	mu      sync.Mutex
	patches []*UserConfigPatch
	err     error
	noData  bool
	props   map[string]string
	block   chan struct{}
}

func (u *fakeUsers) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	return nil, errors.New("not used")
}

func (u *fakeUsers) UpdateUserConfig(ctx context.Context, userID string, patch *UserConfigPatch) (map[string]string, error) {
	if u.block != nil {
		<-u.block
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.patches = append(u.patches, patch)
	if u.err != nil {
		return nil, u.err
	}
	if u.noData {
		return nil, nil
	}
	out := maps.Clone(u.props)
	if out == nil {
		out = map[string]string{}
	}
	maps.Copy(out, patch.UpdatedFields)
	return out, nil
}

func (u *fakeUsers) calls() []*UserConfigPatch {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*UserConfigPatch(nil), u.patches...)
}

// fakeTracker records reported telemetry actions.
type fakeTracker struct {
	mu      sync.Mutex
	actions []string
	props   []map[string]string
}

func (t *fakeTracker) TrackEvent(ctx context.Context, category, action string, props map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = append(t.actions, category+"/"+action)
	t.props = append(t.props, props)
}

func (t *fakeTracker) count(action string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, a := range t.actions {
		if a == TelemetryCategory+"/"+action {
			n++
		}
	}
	return n
}

// fakeFeed is a ChangeFeed whose announcements reach its own subscription.
type fakeFeed struct {
	mu        sync.Mutex
	ch        chan Change
	released  chan struct{}
	err       error
	announced []Change
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan Change, 8), released: make(chan struct{})}
}

func (f *fakeFeed) Subscribe(ctx context.Context, userID, boardID string) (<-chan Change, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.ch, func() { close(f.released) }, nil
}

func (f *fakeFeed) Announce(ctx context.Context, userID string, c Change) error {
	f.mu.Lock()
	f.announced = append(f.announced, c)
	f.mu.Unlock()

	select {
	case f.ch <- c:
	default:
	}
	return nil
}

func (f *fakeFeed) announcements() []Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Change(nil), f.announced...)
}

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *fakeLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

func adminUser() *UserProfile {
	return &UserProfile{ID: "admin-1", Roles: []string{"system_user", RoleSystemAdmin}, Props: map[string]string{}}
}

func regularUser() *UserProfile {
	return &UserProfile{ID: "user-1", Roles: []string{"system_user"}, Props: map[string]string{}}
}

package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/firenet/internal/client"
	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/prefs"
	"github.com/harrylevesque/firenet/internal/statussync"
	"github.com/harrylevesque/firenet/internal/utils"
	"github.com/harrylevesque/firenet/internal/workers"
)

type fakeRemote struct {
	mu          sync.Mutex
	loginToken  string
	loginErr    error
	creds       client.Credentials
	logoutErr   error
	logouts     int
	acks        int
	ackBlock    chan struct{}
	reportErr   error
	reports     []string
	registerErr []error
	registers   int
	keepAlives  int
}

func (f *fakeRemote) Login(_ context.Context, c client.Credentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = c
	return f.loginToken, f.loginErr
}

func (f *fakeRemote) KeepAlive(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAlives++
	return nil
}

func (f *fakeRemote) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (f *fakeRemote) UpdatePromptSeen(ctx context.Context, _ string) error {
	f.mu.Lock()
	f.acks++
	block := f.ackBlock
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	return nil
}

func (f *fakeRemote) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}

func (f *fakeRemote) RegisterDeviceToken(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	if len(f.registerErr) == 0 {
		return nil
	}
	err := f.registerErr[0]
	f.registerErr = f.registerErr[1:]
	return err
}

func (f *fakeRemote) ReportUpdate(_ context.Context, _, platform, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, platform+"/"+version)
	return f.reportErr
}

type fixedID string

func (f fixedID) Resolve() string { return string(f) }

type fetchFunc func(ctx context.Context, token string) (*models.AccountStatus, error)

func (f fetchFunc) Status(ctx context.Context, token string) (*models.AccountStatus, error) {
	return f(ctx, token)
}

type recordingSink struct {
	mu       sync.Mutex
	signedIn []string
	outcomes []statussync.Outcome
	reasons  []string
}

func (r *recordingSink) SignedIn(u string) {
	r.mu.Lock()
	r.signedIn = append(r.signedIn, u)
	r.mu.Unlock()
}

func (r *recordingSink) StatusChanged(o statussync.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recordingSink) SignedOut(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

type fixture struct {
	remote  *fakeRemote
	plain   *prefs.Memory
	secure  *prefs.Memory
	session *SessionStore
	cache   *statussync.Cache
	sink    *recordingSink
	svc     *Service
}

func newFixture(t *testing.T, fetch fetchFunc) *fixture {
	t.Helper()
	f := &fixture{
		remote: &fakeRemote{loginToken: "abc123"},
		plain:  prefs.NewMemory(),
		secure: prefs.NewMemory(),
		sink:   &recordingSink{},
	}
	f.session = NewSessionStore(f.plain.Group(prefs.GroupAuth), utils.Discard())
	f.cache = statussync.NewCache(f.secure.Group(prefs.GroupSecure), utils.Discard())
	if fetch == nil {
		fetch = func(context.Context, string) (*models.AccountStatus, error) {
			return &models.AccountStatus{Username: "alice"}, nil
		}
	}
	syncer := statussync.New(statussync.Config{
		Fetcher:  fetch,
		Cache:    f.cache,
		Session:  f.session,
		Secure:   f.secure,
		Deadline: time.Second,
		Logger:   utils.Discard(),
	})
	f.svc = NewService(Config{
		Remote:         f.remote,
		Session:        f.session,
		Sync:           syncer,
		Device:         fixedID("stable:hw:Model"),
		AppPrefs:       f.plain.Group(prefs.GroupApp),
		Secure:         f.secure,
		Sink:           f.sink,
		AppVersion:     "2.0.1",
		Platform:       "linux",
		Logger:         utils.Discard(),
		PushRetryDelay: time.Millisecond,
	})
	return f
}

func TestSessionStore_FirstLoginWrittenOnce(t *testing.T) {
	s := NewSessionStore(prefs.NewMemory().Group(prefs.GroupAuth), utils.Discard())
	s.now = func() time.Time { return time.UnixMilli(1000) }
	require.NoError(t, s.Save("t1", "alice"))
	s.now = func() time.Time { return time.UnixMilli(2000) }
	require.NoError(t, s.Save("t2", "alice"))

	c, err := s.Credential()
	require.NoError(t, err)
	assert.Equal(t, models.SessionCredential{Token: "t2", Username: "alice", FirstLoginMillis: 1000}, c)
	assert.Equal(t, "t2", s.Token())

	require.NoError(t, s.Clear())
	c, err = s.Credential()
	require.NoError(t, err)
	assert.False(t, c.Valid())
	assert.Zero(t, c.FirstLoginMillis)
	assert.Empty(t, s.Token())

	assert.ErrorIs(t, s.Save("", "alice"), ErrEmptyToken)
}

// A reader racing Clear sees the full credential or none of it.
func TestSessionStore_ClearIsAtomic(t *testing.T) {
	s := NewSessionStore(prefs.NewMemory().Group(prefs.GroupAuth), utils.Discard())
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			c, err := s.Credential()
			assert.NoError(t, err)
			if c.Token != "" {
				assert.Equal(t, "alice", c.Username)
			} else {
				assert.Empty(t, c.Username)
			}
		}
	}()
	for range 200 {
		require.NoError(t, s.Save("tok", "alice"))
		require.NoError(t, s.Clear())
	}
	close(stop)
	wg.Wait()
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	token, err := f.svc.Login(context.Background(), " alice ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
	assert.Equal(t, client.Credentials{Username: "alice", Password: "pw", DeviceID: "stable:hw:Model", AppVersion: "2.0.1"}, f.remote.creds)
	assert.Equal(t, "abc123", f.session.Token())
	assert.Equal(t, []string{"alice"}, f.sink.signedIn)

	_, err = f.svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLogin_FailureStoresNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.remote.loginErr = client.ErrMissingToken
	_, err := f.svc.Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, client.ErrMissingToken)
	assert.Empty(t, f.session.Token())
	assert.Empty(t, f.sink.signedIn)
}

func TestLoginAsync(t *testing.T) {
	f := newFixture(t, nil)
	done := make(chan string, 1)
	f.svc.LoginAsync("alice", "pw", func(token string, err error) {
		assert.NoError(t, err)
		done <- token
	})
	select {
	case tok := <-done:
		assert.Equal(t, "abc123", tok)
	case <-time.After(time.Second):
		t.Fatal("callback not delivered")
	}
}

func TestLogout_LocalAlwaysClears(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Save("tok", "alice"))
	require.NoError(t, f.cache.Save(&models.AccountStatus{Username: "alice"}))
	f.remote.logoutErr = errors.New("network down")

	f.svc.Logout(context.Background(), "tok")
	assert.Empty(t, f.session.Token())
	_, ok := f.cache.Load()
	assert.False(t, ok)
	assert.Equal(t, 1, f.remote.logouts)
	assert.Equal(t, []string{"logout"}, f.sink.reasons)
}

func TestLogout_KeepsDeviceIdentity(t *testing.T) {
	f := newFixture(t, nil)
	dev := f.plain.Group(prefs.GroupDevice)
	require.NoError(t, prefs.SetString(dev, "device_legacy_uuid", "abc"))
	f.svc.Logout(context.Background(), "tok")
	v, err := prefs.GetString(dev, "device_legacy_uuid")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestLogoutAsync(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Save("tok", "alice"))
	done := make(chan struct{})
	f.svc.LogoutAsync("tok", func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback not delivered")
	}
	assert.Empty(t, f.session.Token())
}

func TestStatus_SessionInvalidSignsOut(t *testing.T) {
	f := newFixture(t, func(context.Context, string) (*models.AccountStatus, error) {
		return nil, utils.NewStatusError(401, "Unauthenticated.")
	})
	require.NoError(t, f.session.Save("tok", "alice"))

	o := f.svc.Refresh(context.Background())
	assert.Equal(t, statussync.KindSessionInvalid, o.Kind)
	assert.Empty(t, f.session.Token())
	assert.Equal(t, []string{"session invalid"}, f.sink.reasons)
	require.Len(t, f.sink.outcomes, 1)
}

func TestRefresh_NotLoggedIn(t *testing.T) {
	f := newFixture(t, nil)
	o := f.svc.Refresh(context.Background())
	assert.Equal(t, statussync.KindFailure, o.Kind)
	assert.ErrorIs(t, o.Err, ErrNotLoggedIn)
}

func TestStatus_AcksUpdatePrompt(t *testing.T) {
	yes := true
	f := newFixture(t, func(context.Context, string) (*models.AccountStatus, error) {
		return &models.AccountStatus{Username: "alice", UpdateRequired: &yes}, nil
	})
	o := f.svc.Status(context.Background(), "tok")
	assert.Equal(t, models.UpdateForced, o.Status.UpdatePrompt())
	assert.Eventually(t, func() bool { return f.remote.ackCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStatusAsync_AckDoesNotHoldDelivery(t *testing.T) {
	yes := true
	f := newFixture(t, func(context.Context, string) (*models.AccountStatus, error) {
		return &models.AccountStatus{Username: "alice", UpdateRequired: &yes}, nil
	})
	f.remote.ackBlock = make(chan struct{})
	t.Cleanup(func() { close(f.remote.ackBlock) })

	done := make(chan statussync.Outcome, 1)
	f.svc.StatusAsync("tok", func(o statussync.Outcome) { done <- o })
	select {
	case o := <-done:
		assert.Equal(t, statussync.KindSuccess, o.Kind)
	case <-time.After(time.Second):
		t.Fatal("callback waited on the prompt ack")
	}
	assert.Eventually(t, func() bool { return f.remote.ackCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAsync_SaturatedPoolDoesNotBlockCaller(t *testing.T) {
	f := newFixture(t, nil)
	pool := workers.NewPool(1, utils.Discard())
	t.Cleanup(pool.Close)
	hold := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-hold }))

	svc := NewService(Config{
		Remote:   f.remote,
		Session:  f.session,
		Device:   fixedID("stable:hw:Model"),
		AppPrefs: f.plain.Group(prefs.GroupApp),
		Pool:     pool,
		Logger:   utils.Discard(),
	})

	done := make(chan string, 1)
	start := time.Now()
	svc.LoginAsync("alice", "pw", func(token string, err error) {
		assert.NoError(t, err)
		done <- token
	})
	assert.Less(t, time.Since(start), 100*time.Millisecond, "LoginAsync waited for a pool slot")

	select {
	case <-done:
		t.Fatal("login ran before a slot was free")
	case <-time.After(20 * time.Millisecond):
	}
	close(hold)
	select {
	case tok := <-done:
		assert.Equal(t, "abc123", tok)
	case <-time.After(time.Second):
		t.Fatal("callback not delivered")
	}
}

func TestStatusAsync(t *testing.T) {
	f := newFixture(t, nil)
	done := make(chan statussync.Outcome, 1)
	f.svc.StatusAsync("tok", func(o statussync.Outcome) { done <- o })
	select {
	case o := <-done:
		assert.Equal(t, statussync.KindSuccess, o.Kind)
	case <-time.After(time.Second):
		t.Fatal("callback not delivered")
	}
}

func TestReportAppUpdateIfNeeded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.remote.reportErr = errors.New("down")
	reported, err := f.svc.ReportAppUpdateIfNeeded(ctx, "tok")
	assert.Error(t, err)
	assert.False(t, reported)

	f.remote.reportErr = nil
	reported, err = f.svc.ReportAppUpdateIfNeeded(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, reported)

	reported, err = f.svc.ReportAppUpdateIfNeeded(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, reported, "same version is not reported twice")
	assert.Equal(t, []string{"linux/2.0.1", "linux/2.0.1"}, f.remote.reports)
}

func TestRegisterPushToken_RetriesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assert.ErrorIs(t, f.svc.RegisterPushToken(ctx, "p"), ErrNotLoggedIn)

	require.NoError(t, f.session.Save("tok", "alice"))
	f.remote.registerErr = []error{errors.New("first")}
	require.NoError(t, f.svc.RegisterPushToken(ctx, "p"))
	assert.Equal(t, 2, f.remote.registers)

	f.remote.registers = 0
	f.remote.registerErr = []error{errors.New("first"), errors.New("second"), errors.New("third")}
	assert.EqualError(t, f.svc.RegisterPushToken(ctx, "p"), "second")
	assert.Equal(t, 2, f.remote.registers, "only one retry")
}

func TestKeepAlive(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.KeepAlive(context.Background()))
	assert.Zero(t, f.remote.keepAlives, "no session, no call")

	require.NoError(t, f.session.Save("tok", "alice"))
	require.NoError(t, f.svc.KeepAlive(context.Background()))
	assert.Equal(t, 1, f.remote.keepAlives)
}

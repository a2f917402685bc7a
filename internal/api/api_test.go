package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/firenet/internal/auth"
	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/prefs"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
	"github.com/harrylevesque/firenet/internal/utils"
)

type fakeService struct {
	session   *auth.SessionStore
	loginErr  error
	outcome   statussync.Outcome
	logouts   []string
	ackErr    error
	reported  bool
	pushToken string
	pushErr   error
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	return &fakeService{session: auth.NewSessionStore(prefs.NewMemory().Group(prefs.GroupAuth), utils.Discard())}
}

func (f *fakeService) Login(_ context.Context, username, password string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	if username == "" || password == "" {
		return "", auth.ErrMissingCredentials
	}
	return "tok", f.session.Save("tok", username)
}

func (f *fakeService) Refresh(context.Context) statussync.Outcome { return f.outcome }

func (f *fakeService) Logout(_ context.Context, token string) {
	f.logouts = append(f.logouts, token)
	_ = f.session.Clear()
}

func (f *fakeService) UpdatePromptSeen(context.Context, string) error { return f.ackErr }

func (f *fakeService) ReportAppUpdateIfNeeded(context.Context, string) (bool, error) {
	return f.reported, nil
}

func (f *fakeService) RegisterPushToken(_ context.Context, token string) error {
	f.pushToken = token
	return f.pushErr
}

func (f *fakeService) DeviceID() string            { return "Pixel7_abc" }
func (f *fakeService) Session() *auth.SessionStore { return f.session }

type fakePush struct {
	got map[string]string
}

func (f *fakePush) Handle(data map[string]string) push.Result {
	f.got = data
	if data[push.ActionKey] == push.ActionForceLogout {
		return push.Invalidated
	}
	return push.Notified
}

type fakeTrigger struct{ allow bool }

func (f fakeTrigger) Trigger() bool { return f.allow }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func ptr[T any](v T) *T { return &v }

func TestHealth(t *testing.T) {
	r := NewRouter(Deps{Service: newFakeService(t)})
	rec := do(t, r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	rec = do(t, r, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	svc := newFakeService(t)
	r := NewRouter(Deps{Service: svc})

	rec := do(t, r, "POST", "/login", `{"username":" alice ","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice"}`, rec.Body.String())
	assert.Equal(t, "tok", svc.session.Token())

	rec = do(t, r, "POST", "/login", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "POST", "/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.loginErr = utils.NewStatusError(http.StatusUnauthorized, "bad credentials")
	rec = do(t, r, "POST", "/login", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad credentials")

	svc.loginErr = errors.New("all domains failed")
	rec = do(t, r, "POST", "/login", `{"username":"alice","password":"pw"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStatusOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome statussync.Outcome
		code    int
		kind    string
	}{
		{
			name:    "success",
			outcome: statussync.Outcome{Kind: statussync.KindSuccess, Status: &models.AccountStatus{Username: "alice", DataLimit: ptr(int64(100)), UsedTraffic: ptr(int64(40))}},
			code:    http.StatusOK,
			kind:    "success",
		},
		{
			name:    "cached",
			outcome: statussync.Outcome{Kind: statussync.KindSuccess, Cached: true, Status: &models.AccountStatus{Username: "alice"}, Err: errors.New("timeout")},
			code:    http.StatusOK,
			kind:    "success",
		},
		{
			name:    "forbidden",
			outcome: statussync.Outcome{Kind: statussync.KindForbidden, Err: statussync.ErrForbidden},
			code:    http.StatusForbidden,
			kind:    "forbidden",
		},
		{
			name:    "session invalid",
			outcome: statussync.Outcome{Kind: statussync.KindSessionInvalid, Err: statussync.ErrSessionInvalid},
			code:    http.StatusUnauthorized,
			kind:    "session_invalid",
		},
		{
			name:    "not logged in",
			outcome: statussync.Outcome{Kind: statussync.KindFailure, Err: auth.ErrNotLoggedIn},
			code:    http.StatusUnauthorized,
			kind:    "failure",
		},
		{
			name:    "session changed",
			outcome: statussync.Outcome{Kind: statussync.KindFailure, Err: statussync.ErrSessionChanged},
			code:    http.StatusUnauthorized,
			kind:    "failure",
		},
		{
			name:    "failure",
			outcome: statussync.Outcome{Kind: statussync.KindFailure, Err: errors.New("offline")},
			code:    http.StatusBadGateway,
			kind:    "failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)
			svc.outcome = tt.outcome
			rec := do(t, NewRouter(Deps{Service: svc}), "GET", "/status", "")
			assert.Equal(t, tt.code, rec.Code)

			var v OutcomeView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
			assert.Equal(t, tt.kind, v.Outcome)
			assert.Equal(t, tt.outcome.Cached, v.Cached)
		})
	}
}

func TestStatusView_RemainingTraffic(t *testing.T) {
	v := NewOutcomeView(statussync.Outcome{
		Kind:   statussync.KindSuccess,
		Status: &models.AccountStatus{DataLimit: ptr(int64(100)), UsedTraffic: ptr(int64(40))},
	})
	require.NotNil(t, v.RemainingTraffic)
	assert.Equal(t, int64(60), *v.RemainingTraffic)
	assert.Nil(t, v.ExpiresAt)
	assert.Equal(t, "none", v.UpdatePrompt)
}

func TestRefresh(t *testing.T) {
	svc := newFakeService(t)

	rec := do(t, NewRouter(Deps{Service: svc, Refresher: fakeTrigger{allow: true}}), "POST", "/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, NewRouter(Deps{Service: svc, Refresher: fakeTrigger{allow: false}}), "POST", "/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	svc.outcome = statussync.Outcome{Kind: statussync.KindSuccess, Status: &models.AccountStatus{}}
	rec = do(t, NewRouter(Deps{Service: svc}), "POST", "/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	svc := newFakeService(t)
	require.NoError(t, svc.session.Save("tok", "alice"))
	r := NewRouter(Deps{Service: svc})

	rec := do(t, r, "POST", "/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, "POST", "/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"tok", ""}, svc.logouts)
}

func TestSideActions(t *testing.T) {
	svc := newFakeService(t)
	r := NewRouter(Deps{Service: svc})

	rec := do(t, r, "POST", "/report-update", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, svc.session.Save("tok", "alice"))
	svc.reported = true
	rec = do(t, r, "POST", "/report-update", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reported":true}`, rec.Body.String())

	rec = do(t, r, "POST", "/update-prompt-seen", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, "POST", "/push-token", `{"token":"fcm-1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "fcm-1", svc.pushToken)

	rec = do(t, r, "POST", "/push-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "GET", "/deviceid", "")
	assert.JSONEq(t, `{"device_id":"Pixel7_abc"}`, rec.Body.String())
}

func TestPush(t *testing.T) {
	svc := newFakeService(t)
	p := &fakePush{}
	r := NewRouter(Deps{Service: svc, Push: p})

	rec := do(t, r, "POST", "/push", `{"data":{"action":"FORCE_LOGOUT"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"invalidated"}`, rec.Body.String())
	assert.Equal(t, "FORCE_LOGOUT", p.got["action"])

	rec = do(t, r, "POST", "/push", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, NewRouter(Deps{Service: svc}), "POST", "/push", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBoard(t *testing.T) {
	b := NewBoard(2, utils.Discard())
	assert.Equal(t, StateSignedOut, b.Snapshot().State)

	b.SignedIn("alice")
	s := b.Snapshot()
	assert.Equal(t, StateAuthenticated, s.State)
	assert.Equal(t, "alice", s.Username)

	b.StatusChanged(statussync.Outcome{Kind: statussync.KindForbidden, Err: statussync.ErrForbidden})
	s = b.Snapshot()
	assert.Equal(t, StateSuspended, s.State)
	assert.Equal(t, "account suspended", s.Reason)
	require.NotNil(t, s.Last)
	assert.Equal(t, "forbidden", s.Last.Outcome)

	b.StatusChanged(statussync.Outcome{Kind: statussync.KindFailure, Err: errors.New("offline")})
	assert.Equal(t, StateSuspended, b.Snapshot().State, "a transient failure keeps the state")

	b.StatusChanged(statussync.Outcome{Kind: statussync.KindSuccess, Status: &models.AccountStatus{}})
	assert.Equal(t, StateAuthenticated, b.Snapshot().State)
	assert.Empty(t, b.Snapshot().Reason)

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, b.Notify(push.Notice{Kind: push.NoticeMessage, Body: body}))
	}
	assert.Equal(t, 2, b.Snapshot().Pending)

	b.SignedOut("force logout")
	s = b.Snapshot()
	assert.Equal(t, StateSignedOut, s.State)
	assert.Equal(t, "force logout", s.Reason)
	assert.Empty(t, s.Username)
	assert.Nil(t, s.Last)

	b.StatusChanged(statussync.Outcome{Kind: statussync.KindSuccess, Status: &models.AccountStatus{}})
	s = b.Snapshot()
	assert.Equal(t, StateSignedOut, s.State, "only a sign-in leaves the signed-out state")
	assert.Nil(t, s.Last)

	notices := b.Drain()
	require.Len(t, notices, 2)
	assert.Equal(t, "two", notices[0].Body)
	assert.Equal(t, "three", notices[1].Body)
	assert.Empty(t, b.Drain())
}

func TestStateAndNoticesRoutes(t *testing.T) {
	b := NewBoard(0, utils.Discard())
	b.SignedIn("alice")
	require.NoError(t, b.Notify(push.Notice{Kind: push.NoticeMessage, Body: "hi"}))
	r := NewRouter(Deps{Service: newFakeService(t), Board: b})

	rec := do(t, r, "GET", "/state", "")
	var s Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, StateAuthenticated, s.State)
	assert.Equal(t, 1, s.Pending)

	rec = do(t, r, "GET", "/notices", "")
	var ns []push.Notice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ns))
	require.Len(t, ns, 1)
	assert.Equal(t, "hi", ns[0].Body)

	rec = do(t, r, "GET", "/notices", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

package client_test

import (
	"archive/zip"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/api"
	"github.com/bartossh/Rampart/authmiddleware"
	"github.com/bartossh/Rampart/client"
	"github.com/bartossh/Rampart/emulator"
	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/localstorage"
	"github.com/bartossh/Rampart/realtime"
	"github.com/bartossh/Rampart/resource"
	"github.com/bartossh/Rampart/session"
	"github.com/bartossh/Rampart/telemetry"
)

const (
	adminEmail    = "ops@rampart.test"
	adminPassword = "correct horse battery"
)

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
func (nopLogger) Fatal(string) {}

type notes struct {
	mux  sync.Mutex
	msgs []string
}

func (n *notes) Notify(msg string) {
	n.mux.Lock()
	defer n.mux.Unlock()
	n.msgs = append(n.msgs, msg)
}

type fixture struct {
	srv       *emulator.Server
	base      string
	rest      *client.Rest
	store     *localstorage.Store
	refreshes atomic.Int32
	signIns   atomic.Int32
	notes     *notes
}

func start(t *testing.T, opts ...authmiddleware.Option) *fixture {
	t.Helper()
	srv, err := emulator.New(context.Background(), emulator.Config{
		Secret:        "client-e2e-secret-0123456789",
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
	}, emulator.NewMemory(), nopLogger{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f := &fixture{
		srv:   srv,
		base:  "http://" + ln.Addr().String(),
		store: memory(t),
		notes: &notes{},
	}
	transport := httpclient.New(httpclient.Config{Timeout: 5 * time.Second})
	counting := httpclient.DoerFunc(func(ctx context.Context, r *httpclient.Request) (*httpclient.Response, error) {
		if strings.HasSuffix(r.URL, "/api/oauth/token") {
			f.refreshes.Add(1)
		}
		return transport.Do(ctx, r)
	})
	nav := session.NavigatorFunc(func() { f.signIns.Add(1) })
	f.rest = client.NewRestWithDoer(counting, f.base, f.store, nav, f.notes, nopLogger{}, opts...)
	return f
}

func (f *fixture) login(t *testing.T) session.TokenSet {
	t.Helper()
	ts, err := f.rest.OAuth.Login(context.Background(), adminEmail, adminPassword)
	require.NoError(t, err)
	return ts
}

func TestLoginStoresSession(t *testing.T) {
	f := start(t)
	ts := f.login(t)

	assert.NotEmpty(t, ts.RefreshToken)
	assert.Equal(t, "admin", ts.Role)
	p, err := f.rest.Session.Profile()
	require.NoError(t, err)
	assert.Equal(t, adminEmail, p.Email)
	assert.True(t, f.rest.Session.IsRole("admin"))

	_, err = f.rest.OAuth.Login(context.Background(), adminEmail, "wrong")
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)
	assert.Zero(t, f.refreshes.Load())
}

func TestUnauthenticatedCallsRequireSignIn(t *testing.T) {
	f := start(t)

	_, err := f.rest.Upstreams.List(context.Background(), nil)
	assert.ErrorIs(t, err, authmiddleware.ErrAuthentication)
	assert.EqualValues(t, 1, f.signIns.Load())
}

func TestExpiredTokenIsRefreshedAndRetried(t *testing.T) {
	m := telemetry.New()
	f := start(t, authmiddleware.WithMetrics(m))
	first := f.login(t)

	f.srv.RevokeAccessTokens()
	p, err := f.rest.Upstreams.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, p.Data)
	assert.EqualValues(t, 1, f.refreshes.Load())

	ts, ok := f.rest.Session.TokenSet()
	require.True(t, ok)
	assert.NotEqual(t, first.AccessToken, ts.AccessToken)
	assert.Equal(t, first.RefreshToken, ts.RefreshToken)
	assert.Zero(t, f.signIns.Load())
}

func TestConcurrentRequestsShareOneRefresh(t *testing.T) {
	f := start(t)
	f.login(t)
	f.srv.RevokeAccessTokens()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rest.Sensors.List(context.Background(), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.refreshes.Load())
}

func TestRejectedRefreshSignsOut(t *testing.T) {
	f := start(t)
	ts := f.login(t)
	ts.RefreshToken = "not-a-token"
	require.NoError(t, f.rest.Session.Store(ts))
	f.srv.RevokeAccessTokens()

	_, err := f.rest.Jails.List(context.Background(), nil)
	assert.ErrorIs(t, err, authmiddleware.ErrAuthentication)
	assert.EqualValues(t, 1, f.signIns.Load())
	_, ok := f.rest.Session.TokenSet()
	assert.False(t, ok)
}

func TestChangesAwaitApply(t *testing.T) {
	f := start(t)
	f.login(t)
	ctx := context.Background()

	svc, err := f.rest.Services.Save(ctx, entity.Service{Name: "shop", Timeout: 30})
	require.NoError(t, err)
	require.NotEmpty(t, svc.ID)

	h, err := f.rest.Cluster.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.Pending())
	changes, err := f.rest.Cluster.Changes(ctx)
	require.NoError(t, err)
	require.Len(t, changes.Data, 1)
	assert.Equal(t, api.ServiceCollection, changes.Data[0].Name)

	res, err := f.rest.Cluster.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Succeed)

	h, err = f.rest.Cluster.Health(ctx)
	require.NoError(t, err)
	assert.False(t, h.Pending())
	assert.False(t, h.ApplyActive)
}

func TestResourceLifecycle(t *testing.T) {
	f := start(t)
	f.login(t)
	ctx := context.Background()

	saved, err := f.rest.Upstreams.Save(ctx, entity.Upstream{Name: "backend", Type: "http"})
	require.NoError(t, err)

	got, err := f.rest.Upstreams.GetByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "backend", got.Name)

	got.Description = "primary pool"
	_, err = f.rest.Upstreams.Update(ctx, saved.ID, got)
	require.NoError(t, err)

	byName, err := f.rest.Upstreams.GetByName(ctx, "BACK", nil)
	require.NoError(t, err)
	require.Len(t, byName.Data, 1)
	assert.Equal(t, "primary pool", byName.Data[0].Description)

	require.NoError(t, f.rest.Upstreams.RemoveByID(ctx, saved.ID))
	_, err = f.rest.Upstreams.GetByID(ctx, saved.ID)
	assert.ErrorIs(t, err, httpclient.ErrNotFound)
	assert.NotEmpty(t, f.notes.msgs)
}

func TestPagination(t *testing.T) {
	f := start(t)
	f.login(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := f.rest.Feeds.Save(ctx, entity.Feed{Name: name})
		require.NoError(t, err)
	}

	all, err := f.rest.Feeds.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all.Data, 3)

	meta := resource.PageMeta{Page: 1, PerPage: 2}
	first, err := f.rest.Feeds.List(ctx, &meta)
	require.NoError(t, err)
	assert.Len(t, first.Data, 2)
	assert.Equal(t, 3, first.Metadata.TotalElements)
	assert.Equal(t, 2, first.Metadata.TotalPages)
	require.True(t, first.Metadata.HasNext())

	next := first.Metadata.Next()
	second, err := f.rest.Feeds.List(ctx, &next)
	require.NoError(t, err)
	assert.Len(t, second.Data, 1)
	assert.False(t, second.Metadata.HasNext())
}

func TestBackupRestore(t *testing.T) {
	f := start(t)
	f.login(t)
	ctx := context.Background()

	_, err := f.rest.Services.Save(ctx, entity.Service{Name: "shop"})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := f.rest.Cluster.Backup(ctx, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.NotEmpty(t, zr.File)

	err = f.rest.Cluster.Restore(ctx, "backup.tar", bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, api.ErrNotZip)

	require.NoError(t, f.rest.Cluster.Restore(ctx, "backup.zip", bytes.NewReader(buf.Bytes())))
	services, err := f.rest.Services.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, services.Data, 1)
	assert.Equal(t, "shop", services.Data[0].Name)
}

func TestApplyTrackerFollowsRealtime(t *testing.T) {
	f := start(t)
	f.login(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 1)
	rt := realtime.New(realtime.Config{URL: f.base, ReconnectAttempts: -1}, nopLogger{},
		realtime.WithOnConnect(func() { connected <- struct{}{} }))
	tracker := realtime.NewApplyTracker(f.rest.Cluster, nil)
	active, err := tracker.Init(ctx)
	require.NoError(t, err)
	assert.False(t, active)
	assert.False(t, tracker.Pending())

	go tracker.Watch(ctx, rt.Subscribe())
	go func() { _ = rt.Run(ctx) }()
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("realtime channel did not connect")
	}

	// the socket joins the broadcast hub asynchronously, keep mutating until an event arrives
	require.Eventually(t, func() bool {
		if _, err := f.rest.Dictionaries.Save(ctx, entity.Dictionary{Name: "bad-bots"}); err != nil {
			return false
		}
		time.Sleep(50 * time.Millisecond)
		return tracker.Pending()
	}, 5*time.Second, 20*time.Millisecond)

	_, err = f.rest.Cluster.Apply(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !tracker.Pending() }, 5*time.Second, 20*time.Millisecond)
}

func memory(t *testing.T) *localstorage.Store {
	t.Helper()
	s, err := localstorage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

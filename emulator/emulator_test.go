package emulator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/realtime"
	"github.com/bartossh/Rampart/session"
)

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
func (nopLogger) Fatal(string) {}

const testSecret = "emulator-test-secret-0123456789"

type fixture struct {
	srv  *Server
	repo *Memory
	base string
	cli  *httpclient.Client
}

func start(t *testing.T, cfg Config) *fixture {
	t.Helper()
	cfg.Secret = testSecret
	repo := NewMemory()
	srv, err := New(context.Background(), cfg, repo, nopLogger{})
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

	return &fixture{
		srv:  srv,
		repo: repo,
		base: "http://" + ln.Addr().String(),
		cli:  httpclient.New(httpclient.Config{Timeout: 5 * time.Second}),
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httpclient.Response, error) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httpclient.NewRequest(method, f.base+path, raw)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return f.cli.Do(context.Background(), req)
}

func (f *fixture) login(t *testing.T) tokenResponse {
	t.Helper()
	resp, err := f.do(t, http.MethodPost, "/api/oauth/login", "", credentials{Email: defaultAdminEmail, Password: defaultAdminPassword})
	require.NoError(t, err)
	var out tokenResponse
	require.NoError(t, resp.Decode(&out))
	return out
}

func TestConfigValidation(t *testing.T) {
	_, err := New(context.Background(), Config{Secret: "short"}, NewMemory(), nopLogger{})
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = New(context.Background(), Config{Secret: testSecret, Port: 70000}, NewMemory(), nopLogger{})
	assert.ErrorIs(t, err, ErrWrongPortSpecified)
}

func TestLogin(t *testing.T) {
	f := start(t, Config{})

	resp, err := f.do(t, http.MethodPost, "/api/oauth/login", "", credentials{Email: defaultAdminEmail, Password: "wrong"})
	require.ErrorIs(t, err, httpclient.ErrUnauthorized)
	apiErr, ok := httpclient.ParseAPIError(resp.Body)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
	assert.Equal(t, http.MethodPost, apiErr.Method)

	tokens := f.login(t)
	assert.Equal(t, tokenType, tokens.TokenType)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, int64(defaultAccessTTL.Seconds()), tokens.ExpiresIn)

	claims, err := session.Decode(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, roleAdmin, claims.Profile.Role)
	assert.Equal(t, defaultAdminEmail, claims.Profile.Email)
	assert.Equal(t, []string{roleAdmin}, claims.Authorities)
}

func TestAuthenticationRequired(t *testing.T) {
	f := start(t, Config{})

	_, err := f.do(t, http.MethodGet, "/api/service", "", nil)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)

	_, err = f.do(t, http.MethodGet, "/api/service", "not-a-token", nil)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)
}

func TestRefreshAfterRevoke(t *testing.T) {
	f := start(t, Config{})
	tokens := f.login(t)

	f.srv.RevokeAccessTokens()
	_, err := f.do(t, http.MethodGet, "/api/service", tokens.AccessToken, nil)
	require.ErrorIs(t, err, httpclient.ErrUnauthorized)

	req := httpclient.NewRequest(http.MethodGet, f.base+"/api/oauth/token", nil)
	req.Header.Set(refreshTokenHeader, tokens.RefreshToken)
	resp, err := f.cli.Do(context.Background(), req)
	require.NoError(t, err)
	var refreshed tokenResponse
	require.NoError(t, resp.Decode(&refreshed))
	assert.Empty(t, refreshed.RefreshToken)

	_, err = f.do(t, http.MethodGet, "/api/service", refreshed.AccessToken, nil)
	assert.NoError(t, err)

	req = httpclient.NewRequest(http.MethodGet, f.base+"/api/oauth/token", nil)
	req.Header.Set(refreshTokenHeader, tokens.AccessToken+"x")
	_, err = f.cli.Do(context.Background(), req)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)
}

func TestAccessAndRefreshTokensAreNotInterchangeable(t *testing.T) {
	f := start(t, Config{})
	tokens := f.login(t)

	req := httpclient.NewRequest(http.MethodGet, f.base+"/api/oauth/token", nil)
	req.Header.Set(refreshTokenHeader, tokens.AccessToken)
	_, err := f.cli.Do(context.Background(), req)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)

	_, err = f.do(t, http.MethodGet, "/api/service", tokens.RefreshToken, nil)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)

	_, err = f.do(t, http.MethodGet, "/api/service", tokens.AccessToken, nil)
	assert.NoError(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := start(t, Config{})
	tokens := f.login(t)

	_, err := f.do(t, http.MethodDelete, "/api/oauth/logout", tokens.AccessToken, nil)
	require.NoError(t, err)
	_, err = f.do(t, http.MethodGet, "/api/service", tokens.AccessToken, nil)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)
}

func TestProviderCallback(t *testing.T) {
	f := start(t, Config{})

	resp, err := f.do(t, http.MethodGet, "/api/oauth/google/callback?code="+base58.Encode([]byte(defaultAdminEmail)), "", nil)
	require.NoError(t, err)
	var tokens tokenResponse
	require.NoError(t, resp.Decode(&tokens))
	assert.NotEmpty(t, tokens.AccessToken)

	_, err = f.do(t, http.MethodGet, "/api/oauth/google/callback?code="+base58.Encode([]byte("nobody@x")), "", nil)
	assert.ErrorIs(t, err, httpclient.ErrUnauthorized)
}

func TestCollectionLifecycleTracksChanges(t *testing.T) {
	f := start(t, Config{})
	token := f.login(t).AccessToken

	ids := make([]string, 0, 3)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		resp, err := f.do(t, http.MethodPost, "/api/service", token, map[string]any{"name": name, "_id": "ignored"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var svc entity.Service
		require.NoError(t, resp.Decode(&svc))
		assert.NotEqual(t, "ignored", svc.ID)
		ids = append(ids, svc.ID)
	}

	resp, err := f.do(t, http.MethodGet, "/api/service?page=2&size=2", token, nil)
	require.NoError(t, err)
	var p page
	require.NoError(t, resp.Decode(&p))
	assert.Len(t, p.Data, 1)
	assert.Equal(t, pageMeta{TotalElements: 3, TotalPages: 2, PerPage: 2, Page: 2}, p.Metadata)

	resp, err = f.do(t, http.MethodGet, "/api/service?name=BET", token, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&p))
	require.Len(t, p.Data, 1)
	assert.Contains(t, string(p.Data[0]), `"beta"`)

	resp, err = f.do(t, http.MethodPatch, "/api/service/"+ids[0], token, map[string]any{"rate_limit": true})
	require.NoError(t, err)
	var patched map[string]any
	require.NoError(t, resp.Decode(&patched))
	assert.Equal(t, "alpha", patched["name"])
	assert.Equal(t, true, patched["rate_limit"])

	_, err = f.do(t, http.MethodDelete, "/api/service/"+ids[1], token, nil)
	require.NoError(t, err)
	_, err = f.do(t, http.MethodGet, "/api/service/"+ids[1], token, nil)
	assert.ErrorIs(t, err, httpclient.ErrNotFound)

	_, err = f.do(t, http.MethodPost, "/api/upstream", token, map[string]any{"name": "pool"})
	require.NoError(t, err)

	resp, err = f.do(t, http.MethodGet, "/api/cluster/health", token, nil)
	require.NoError(t, err)
	var h entity.HealthStatus
	require.NoError(t, resp.Decode(&h))
	require.Len(t, h.ApplyPending, 2)
	names := []string{h.ApplyPending[0].Name, h.ApplyPending[1].Name}
	assert.ElementsMatch(t, []string{"service", "upstream"}, names)

	resp, err = f.do(t, http.MethodGet, "/api/cluster/apply", token, nil)
	require.NoError(t, err)
	var result entity.ApplyResult
	require.NoError(t, resp.Decode(&result))
	assert.True(t, result.Succeed)

	resp, err = f.do(t, http.MethodGet, "/api/cluster/health", token, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&h))
	assert.False(t, h.Pending())

	_, err = f.do(t, http.MethodGet, "/api/unknown", token, nil)
	assert.ErrorIs(t, err, httpclient.ErrNotFound)
}

func TestUsersHidePasswordAndAreNotChanges(t *testing.T) {
	f := start(t, Config{})
	token := f.login(t).AccessToken

	resp, err := f.do(t, http.MethodPost, "/api/user", token, entity.User{Name: "op", Email: "op@rampart.local", Password: "secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(resp.Body), "password")
	var u entity.User
	require.NoError(t, resp.Decode(&u))
	assert.Equal(t, "operator", u.Role)

	_, err = f.do(t, http.MethodPost, "/api/user", token, entity.User{Name: "dup", Email: "op@rampart.local", Password: "x"})
	assert.Equal(t, http.StatusConflict, httpclient.StatusCode(err))

	resp, err = f.do(t, http.MethodPost, "/api/oauth/login", "", credentials{Email: "op@rampart.local", Password: "secret"})
	require.NoError(t, err)
	var opTokens tokenResponse
	require.NoError(t, resp.Decode(&opTokens))

	resp, err = f.do(t, http.MethodPut, "/api/user/"+u.ID+"/account", opTokens.AccessToken, map[string]string{"name": "renamed"})
	require.NoError(t, err)
	var reissued tokenResponse
	require.NoError(t, resp.Decode(&reissued))
	claims, err := session.Decode(reissued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "renamed", claims.Profile.Name)

	_, err = f.do(t, http.MethodPost, "/api/oauth/login", "", credentials{Email: "op@rampart.local", Password: "secret"})
	assert.NoError(t, err)

	resp, err = f.do(t, http.MethodGet, "/api/cluster/changes", token, nil)
	require.NoError(t, err)
	var p page
	require.NoError(t, resp.Decode(&p))
	assert.Empty(t, p.Data)
}

func TestRuleCategories(t *testing.T) {
	f := start(t, Config{})
	token := f.login(t).AccessToken

	for _, c := range []entity.RuleCategory{
		{Name: "protocol", Rules: []entity.SecRule{{Code: 920100, Phase: "1"}}},
		{Name: "sqli", Rules: []entity.SecRule{{Code: 942100, Phase: "2"}}},
	} {
		resp, err := f.do(t, http.MethodPost, "/api/rulecat", token, c)
		require.NoError(t, err)
		var created entity.RuleCategory
		require.NoError(t, resp.Decode(&created))
		assert.Positive(t, created.ID)
	}

	resp, err := f.do(t, http.MethodGet, "/api/rulecat/2", token, nil)
	require.NoError(t, err)
	var cat entity.RuleCategory
	require.NoError(t, resp.Decode(&cat))
	assert.Equal(t, "sqli", cat.Name)

	resp, err = f.do(t, http.MethodGet, "/api/rulecat?phases=2,3", token, nil)
	require.NoError(t, err)
	var cats []entity.RuleCategory
	require.NoError(t, resp.Decode(&cats))
	require.Len(t, cats, 1)
	assert.Equal(t, 2, cats[0].ID)

	resp, err = f.do(t, http.MethodGet, "/api/rulecat/by_name/protocol", token, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&cat))
	assert.Equal(t, 1, cat.ID)

	_, err = f.do(t, http.MethodPost, "/api/rulesec", token, entity.SecRule{Code: 942100, Msg: "sqli"})
	require.NoError(t, err)
	resp, err = f.do(t, http.MethodGet, "/api/rulesec/by_code/942100", token, nil)
	require.NoError(t, err)
	var p page
	require.NoError(t, resp.Decode(&p))
	assert.Len(t, p.Data, 1)
}

func TestTransactionSearch(t *testing.T) {
	f := start(t, Config{})
	token := f.login(t).AccessToken
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.Add(30 * time.Second), base.Add(2 * time.Minute), base.Add(time.Hour)} {
		raw, err := json.Marshal(entity.TransactionLog{ID: newID(), Action: []string{"pass", "block"}[i%2], LogTime: at})
		require.NoError(t, err)
		rec, err := RecordOf(raw)
		require.NoError(t, err)
		require.NoError(t, f.repo.Insert(context.Background(), transactionCollection, rec))
	}
	body := searchBody{
		LogTimeStart: base.Format(DateFormat),
		LogTimeEnd:   base.Add(5 * time.Minute).Format(DateFormat),
	}

	resp, err := f.do(t, http.MethodPost, "/api/trn?page=1&size=10", token, body)
	require.NoError(t, err)
	var p page
	require.NoError(t, resp.Decode(&p))
	assert.Equal(t, 3, p.Metadata.TotalElements)

	body.Filters = []json.RawMessage{json.RawMessage(`{"action":"block"}`)}
	resp, err = f.do(t, http.MethodPost, "/api/trn", token, body)
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&p))
	assert.Equal(t, 1, p.Metadata.TotalElements)

	body.Filters = nil
	resp, err = f.do(t, http.MethodPost, "/api/trn/stats/tpm", token, body)
	require.NoError(t, err)
	var points []entity.TPMPoint
	require.NoError(t, resp.Decode(&points))
	require.Len(t, points, 2)
	assert.Equal(t, int64(2), points[0].Count)
	assert.True(t, points[0].LogTime.Equal(base))

	body.LogTimeEnd = "yesterday"
	_, err = f.do(t, http.MethodPost, "/api/trn", token, body)
	assert.Equal(t, http.StatusBadRequest, httpclient.StatusCode(err))
}

func TestBackupRestore(t *testing.T) {
	f := start(t, Config{})
	token := f.login(t).AccessToken

	_, err := f.do(t, http.MethodPost, "/api/certificate", token, map[string]any{"name": "edge", "provider": "SELF"})
	require.NoError(t, err)
	_, err = f.do(t, http.MethodPut, "/api/cluster/config", token, map[string]any{"maxmind_key": "k"})
	require.NoError(t, err)

	resp, err := f.do(t, http.MethodGet, "/api/cluster/backup", token, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", resp.ContentType)
	archive := resp.Body

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	entries := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		entries = append(entries, zf.Name)
	}
	assert.Contains(t, entries, "certificate.json")
	assert.Contains(t, entries, "config.json")
	assert.NotContains(t, entries, "change.json")

	require.NoError(t, f.repo.Truncate(context.Background(), certificateCollection))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(restoreField, "backup.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httpclient.NewRequest(http.MethodPost, f.base+"/api/cluster/backup", buf.Bytes())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Multipart = true
	_, err = f.cli.Do(context.Background(), req)
	require.NoError(t, err)

	resp, err = f.do(t, http.MethodGet, "/api/certificate?provider=SELF", token, nil)
	require.NoError(t, err)
	var p page
	require.NoError(t, resp.Decode(&p))
	assert.Len(t, p.Data, 1)

	resp, err = f.do(t, http.MethodGet, "/api/cluster/config", token, nil)
	require.NoError(t, err)
	var cfg entity.Config
	require.NoError(t, resp.Decode(&cfg))
	assert.Equal(t, "k", cfg.MaxmindKey)
}

func TestApplyActiveIsReported(t *testing.T) {
	f := start(t, Config{ApplyDelay: 300 * time.Millisecond})
	token := f.login(t).AccessToken

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.do(t, http.MethodGet, "/api/cluster/apply", token, nil)
		assert.NoError(t, err)
	}()

	assert.Eventually(t, func() bool {
		resp, err := f.do(t, http.MethodGet, "/api/cluster/health", token, nil)
		if err != nil {
			return false
		}
		var h entity.HealthStatus
		return resp.Decode(&h) == nil && h.ApplyActive
	}, 2*time.Second, 20*time.Millisecond)

	_, err := f.do(t, http.MethodGet, "/api/cluster/apply", token, nil)
	assert.Equal(t, http.StatusConflict, httpclient.StatusCode(err))
	wg.Wait()

	resp, err := f.do(t, http.MethodGet, "/api/cluster/nodes", token, nil)
	require.NoError(t, err)
	var p page
	require.NoError(t, resp.Decode(&p))
	assert.Len(t, p.Data, 1)
}

func TestSocketEmitsTrackingEvents(t *testing.T) {
	f := start(t, Config{})
	token := f.login(t).AccessToken

	connected := make(chan struct{}, 1)
	rt := realtime.New(realtime.Config{URL: f.base, ReconnectAttempts: -1}, nopLogger{}, realtime.WithOnConnect(func() {
		connected <- struct{}{}
	}))
	sub := rt.Subscribe()
	defer sub.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("socket did not connect")
	}

	// registration travels through the hub channel, give it a moment
	require.Eventually(t, func() bool {
		if _, err := f.do(t, http.MethodPost, "/api/feed", token, map[string]any{"name": "tor"}); err != nil {
			return false
		}
		select {
		case ev := <-sub.Channel():
			return ev.Name == realtime.EventTracking
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	_, err := f.do(t, http.MethodGet, "/api/cluster/apply", token, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case ev := <-sub.Channel():
			return ev.Name == realtime.EventApplied
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

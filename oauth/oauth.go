package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/session"
)

const refreshHeader = "Refresh-Token"

var (
	ErrSignInFailed  = errors.New("sign in failed")
	ErrMissingToken  = errors.New("server returned no access token")
	ErrEmptyArgument = errors.New("empty argument")
)

// Refresher exchanges refresh tokens using the raw transport.
type Refresher struct {
	raw      httpclient.Doer
	endpoint string
}

// NewRefresher creates Refresher for the API served at baseURL.
func NewRefresher(raw httpclient.Doer, baseURL string) *Refresher {
	return &Refresher{raw: raw, endpoint: endpoint(baseURL)}
}

// Client signs the user in and out of the management API.
// Sign in, refresh and code exchange use the raw transport so a rejected attempt never triggers a refresh.
type Client struct {
	*Refresher
	authed httpclient.Doer
	store  *session.Store
}

// New creates oauth Client. raw is the bare transport, authed is the authenticated pipeline.
func New(raw, authed httpclient.Doer, store *session.Store, baseURL string) *Client {
	return &Client{
		Refresher: NewRefresher(raw, baseURL),
		authed:    authed,
		store:     store,
	}
}

func endpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/oauth"
}

// Login exchanges credentials for tokens and stores them.
func (c *Client) Login(ctx context.Context, email, password string) (session.TokenSet, error) {
	if email == "" || password == "" {
		return session.TokenSet{}, errors.Join(ErrSignInFailed, ErrEmptyArgument)
	}
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return session.TokenSet{}, err
	}
	req := httpclient.NewRequest(http.MethodPost, c.endpoint+"/login", body)
	req.Header.Set("Content-Type", "application/json")
	ts, err := c.exchange(ctx, req)
	if err != nil {
		return ts, errors.Join(ErrSignInFailed, err)
	}
	if err := c.store.Store(ts); err != nil {
		return ts, err
	}
	return c.stored(ts), nil
}

// AuthorizeCode exchanges an authorization code of an external provider for tokens and stores them.
func (c *Client) AuthorizeCode(ctx context.Context, provider, code string) (session.TokenSet, error) {
	if provider == "" || code == "" {
		return session.TokenSet{}, errors.Join(ErrSignInFailed, ErrEmptyArgument)
	}
	req := httpclient.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s/callback", c.endpoint, url.PathEscape(provider)), nil)
	req.Query = url.Values{"code": {code}}
	ts, err := c.exchange(ctx, req)
	if err != nil {
		return ts, errors.Join(ErrSignInFailed, err)
	}
	if ts.Provider == "" {
		ts.Provider = provider
	}
	if err := c.store.Store(ts); err != nil {
		return ts, err
	}
	return c.stored(ts), nil
}

// Refresh exchanges the refresh token for a new access token.
// The server does not return a refresh token, callers keep the previous one.
func (c *Refresher) Refresh(ctx context.Context, refreshToken string) (session.TokenSet, error) {
	if refreshToken == "" {
		return session.TokenSet{}, ErrEmptyArgument
	}
	req := httpclient.NewRequest(http.MethodGet, c.endpoint+"/token", nil)
	req.Header.Set(refreshHeader, refreshToken)
	return c.exchange(ctx, req)
}

// Logout signs out on the server. The local session is reset even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.authed.Do(ctx, httpclient.NewRequest(http.MethodDelete, c.endpoint+"/logout", nil))
	if rErr := c.store.Reset(); rErr != nil {
		return errors.Join(err, rErr)
	}
	return err
}

func (c *Refresher) exchange(ctx context.Context, req *httpclient.Request) (session.TokenSet, error) {
	resp, err := c.raw.Do(ctx, req)
	if err != nil {
		return session.TokenSet{}, err
	}
	var ts session.TokenSet
	if err := resp.Decode(&ts); err != nil {
		return session.TokenSet{}, err
	}
	if ts.AccessToken == "" {
		return session.TokenSet{}, ErrMissingToken
	}
	return ts, nil
}

func (c *Client) stored(fallback session.TokenSet) session.TokenSet {
	if ts, ok := c.store.TokenSet(); ok {
		return ts
	}
	return fallback
}

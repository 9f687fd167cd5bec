package authmiddleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/session"
)

const (
	refreshKey        = "refresh"
	requestHistogram  = "rampart_request_duration_microseconds"
	refreshCounter    = "rampart_token_refresh_total"
	refreshFailures   = "rampart_token_refresh_failures_total"
	headerAuth        = "Authorization"
	headerContentType = "Content-Type"
	headerPragma      = "Pragma"
)

var (
	ErrAuthentication  = errors.New("authentication failed, sign in required")
	ErrNoRefreshToken  = errors.New("no refresh token")
	ErrStoreTokensFail = errors.New("storing refreshed tokens failed")
)

// TokenKeeper gives access to the persisted session.
type TokenKeeper interface {
	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	TokenSet() (session.TokenSet, bool)
	Store(ts session.TokenSet) error
	Reset() error
}

// Refresher exchanges a refresh token for a new TokenSet.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (session.TokenSet, error)
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(msg string)
}

// Metrics records request durations and token refreshes.
type Metrics interface {
	CreateUpdateObservableHistogram(name, description string)
	RecordHistogramTime(name string, t time.Duration) bool
	CreateUpdateCounter(name, description string)
	IncrementCounter(name string) bool
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithMetrics enables request and refresh metrics.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		m.CreateUpdateObservableHistogram(requestHistogram, "Duration of management API requests.")
		m.CreateUpdateCounter(refreshCounter, "Number of access token refreshes.")
		m.CreateUpdateCounter(refreshFailures, "Number of failed access token refreshes.")
		p.metrics = m
	}
}

// Pipeline is a httpclient.Doer attaching the bearer token to every request
// and recovering once from an expired access token by refreshing it.
// Concurrent requests rejected with 401 share a single refresh.
type Pipeline struct {
	next      httpclient.Doer
	tokens    TokenKeeper
	refresher Refresher
	nav       session.Navigator
	notifier  Notifier
	log       logger.Logger
	metrics   Metrics
	group     singleflight.Group
}

// New creates Pipeline wrapping next.
func New(
	next httpclient.Doer, tokens TokenKeeper, refresher Refresher,
	nav session.Navigator, notifier Notifier, log logger.Logger, opts ...Option,
) *Pipeline {
	p := &Pipeline{
		next:      next,
		tokens:    tokens,
		refresher: refresher,
		nav:       nav,
		notifier:  notifier,
		log:       log,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Do dispatches r with the current access token.
// On 401 the token is refreshed and the request is retried exactly once.
// When the refresh fails the session is reset, the navigator is asked to sign in and ErrAuthentication is returned.
func (p *Pipeline) Do(ctx context.Context, r *httpclient.Request) (*httpclient.Response, error) {
	token, _ := p.tokens.AccessToken()
	resp, err := p.dispatch(ctx, r, token)
	if err == nil {
		return resp, nil
	}

	if httpclient.StatusCode(err) == http.StatusUnauthorized {
		fresh, rErr := p.refresh(ctx, token)
		if rErr != nil {
			return nil, errors.Join(ErrAuthentication, rErr)
		}
		resp, err = p.dispatch(ctx, r, fresh)
		if err == nil {
			return resp, nil
		}
	}

	p.report(r, err)
	return resp, err
}

func (p *Pipeline) dispatch(ctx context.Context, r *httpclient.Request, token string) (*httpclient.Response, error) {
	start := time.Now()
	resp, err := p.next.Do(ctx, prepare(r, token))
	if p.metrics != nil {
		p.metrics.RecordHistogramTime(requestHistogram, time.Since(start))
	}
	return resp, err
}

func prepare(r *httpclient.Request, token string) *httpclient.Request {
	c := r.Clone()
	if token != "" {
		c.Header.Set(headerAuth, "Bearer "+token)
	} else {
		c.Header.Del(headerAuth)
	}
	if c.Header.Get(headerContentType) == "" && !c.Multipart {
		c.Header.Set(headerContentType, "application/json")
	}
	c.Header.Set(headerPragma, "no-cache")
	return c
}

// refresh returns an access token newer than used.
// A token already replaced by a concurrent refresh is reused without calling the server.
// A session already ended by a concurrent failed refresh is not signed out again.
func (p *Pipeline) refresh(ctx context.Context, used string) (string, error) {
	if current, done, err := p.settled(used); done {
		return current, err
	}

	v, err, _ := p.group.Do(refreshKey, func() (any, error) {
		if current, done, err := p.settled(used); done {
			return current, err
		}
		token, err := p.exchange(context.WithoutCancel(ctx))
		if err != nil {
			p.signOut(err)
			return "", err
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// settled reports whether the session moved on since used was read.
func (p *Pipeline) settled(used string) (string, bool, error) {
	current, ok := p.tokens.AccessToken()
	switch {
	case ok && current != used:
		return current, true, nil
	case !ok && used != "":
		return "", true, session.ErrNoSession
	default:
		return "", false, nil
	}
}

func (p *Pipeline) exchange(ctx context.Context) (string, error) {
	refreshToken, ok := p.tokens.RefreshToken()
	if !ok {
		return "", ErrNoRefreshToken
	}
	ts, err := p.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	if prev, ok := p.tokens.TokenSet(); ok {
		if ts.IDToken == "" {
			ts.IDToken = prev.IDToken
		}
		if ts.Provider == "" {
			ts.Provider = prev.Provider
		}
	}
	if err := p.tokens.Store(ts); err != nil {
		return "", errors.Join(ErrStoreTokensFail, err)
	}
	if p.metrics != nil {
		p.metrics.IncrementCounter(refreshCounter)
	}
	p.log.Debug("access token refreshed")
	return ts.AccessToken, nil
}

func (p *Pipeline) signOut(cause error) {
	if p.metrics != nil {
		p.metrics.IncrementCounter(refreshFailures)
	}
	p.log.Warn(fmt.Sprintf("token refresh failed: %s", cause))
	if err := p.tokens.Reset(); err != nil {
		p.log.Error(fmt.Sprintf("session reset failed: %s", err))
	}
	p.nav.SignIn()
}

func (p *Pipeline) report(r *httpclient.Request, err error) {
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.API != nil {
		p.notifier.Notify(se.API.String())
		return
	}
	if se != nil {
		p.log.Error(fmt.Sprintf("unknown error: status %d: %s", se.Code, se.Message))
		return
	}
	p.log.Error(fmt.Sprintf("request %s %s failed: %s", r.Method, r.URL, err))
}

package client

import (
	"github.com/bartossh/Rampart/api"
	"github.com/bartossh/Rampart/authmiddleware"
	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/oauth"
	"github.com/bartossh/Rampart/session"
)

// Rest is the management API client with every service dispatching through the authenticated pipeline.
type Rest struct {
	*api.Client
	OAuth    *oauth.Client
	Session  *session.Store
	Pipeline *authmiddleware.Pipeline
	BaseURL  string
}

// NewRest wires the transport, the session store, the pipeline and the typed services together.
func NewRest(
	cfg httpclient.Config, storage session.Storage, nav session.Navigator,
	notifier authmiddleware.Notifier, log logger.Logger, opts ...authmiddleware.Option,
) *Rest {
	return NewRestWithDoer(httpclient.New(cfg), cfg.BaseURL, storage, nav, notifier, log, opts...)
}

// NewRestWithDoer is like NewRest but dispatches through the given raw transport.
func NewRestWithDoer(
	raw httpclient.Doer, baseURL string, storage session.Storage, nav session.Navigator,
	notifier authmiddleware.Notifier, log logger.Logger, opts ...authmiddleware.Option,
) *Rest {
	store := session.New(storage, session.WithNavigator(nav))
	pipeline := authmiddleware.New(raw, store, oauth.NewRefresher(raw, baseURL), nav, notifier, log, opts...)
	return &Rest{
		Client:   api.New(pipeline, baseURL),
		OAuth:    oauth.New(raw, pipeline, store, baseURL),
		Session:  store,
		Pipeline: pipeline,
		BaseURL:  baseURL,
	}
}

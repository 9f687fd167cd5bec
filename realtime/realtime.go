package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/reactive"
)

// Events emitted by the management API.
const (
	EventTracking = "tracking_evt"
	EventApplied  = "tracking_aply"
)

const (
	socketPath        = "/socket.io/"
	defaultAttempts   = 5
	defaultDelay      = 10 * time.Second
	defaultDelayMax   = 20 * time.Second
	defaultDial       = 10 * time.Second
	defaultPingWindow = 45 * time.Second
	bufferSize        = 64
)

var (
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	ErrConnectRejected    = errors.New("namespace connection rejected")
	ErrClosedByServer     = errors.New("connection closed by server")
)

// Config configures the realtime channel.
type Config struct {
	URL               string        `yaml:"url"`                 // base URL of the API, socket path is appended
	ReconnectAttempts int           `yaml:"reconnect_attempts"`  // 5 when zero, negative disables reconnection
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`     // 10s when zero
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"` // 20s when zero
	DialTimeout       time.Duration `yaml:"dial_timeout"`        // 10s when zero
}

func (c Config) withDefaults() Config {
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = defaultAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultDelay
	}
	if c.ReconnectDelayMax < c.ReconnectDelay {
		c.ReconnectDelayMax = defaultDelayMax
		if c.ReconnectDelayMax < c.ReconnectDelay {
			c.ReconnectDelayMax = c.ReconnectDelay
		}
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDial
	}
	return c
}

// Event is a named event received from the server.
type Event struct {
	Name       string            `json:"name"`
	Args       []json.RawMessage `json:"args,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// SocketURL converts http(s) base URL to the websocket endpoint.
// An URL already pointing at the endpoint is returned with the query reset.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, strings.TrimRight(socketPath, "/")) {
		path += strings.TrimRight(socketPath, "/")
	}
	u.Path = path + "/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

// Option configures the Client.
type Option func(*Client)

// WithHeader sets a function providing handshake headers, called on every connection attempt.
func WithHeader(f func() http.Header) Option {
	return func(c *Client) {
		c.header = f
	}
}

// WithOnConnect sets a callback called after each successful namespace connection.
func WithOnConnect(f func()) Option {
	return func(c *Client) {
		c.onConnect = f
	}
}

// Client maintains a socket.io connection and publishes received events.
type Client struct {
	cfg       Config
	log       logger.Logger
	events    *reactive.Observable[Event]
	header    func() http.Header
	onConnect func()
	dialer    *websocket.Dialer
}

// New creates Client.
func New(cfg Config, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		log:    log,
		events: reactive.New[Event](bufferSize),
		header: func() http.Header { return http.Header{} },
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.withDefaults().DialTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Subscribe returns subscription to received events.
func (c *Client) Subscribe() *reactive.Subscription[Event] {
	return c.events.Subscribe()
}

// Run connects and keeps the connection alive until ctx is done.
// A dropped connection is retried with backoff, the attempt counter resets after a successful connection.
// Returns nil when ctx is done and ErrReconnectExhausted when the attempts run out.
func (c *Client) Run(ctx context.Context) error {
	endpoint, err := SocketURL(c.cfg.URL)
	if err != nil {
		return err
	}

	attempt := 0
	for {
		connected, err := c.session(ctx, endpoint)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		if err != nil {
			c.log.Warn(fmt.Sprintf("realtime connection lost: %s", err))
		}
		if c.cfg.ReconnectAttempts < 0 || attempt >= c.cfg.ReconnectAttempts {
			return errors.Join(ErrReconnectExhausted, err)
		}
		attempt++
		delay := c.backoff(attempt)
		c.log.Info(fmt.Sprintf("realtime reconnect attempt %d in %s", attempt, delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.ReconnectDelay << (attempt - 1)
	if d <= 0 || d > c.cfg.ReconnectDelayMax {
		d = c.cfg.ReconnectDelayMax
	}
	// randomization factor 0.5 as socket.io clients do
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	if rand.Intn(2) == 0 {
		d -= jitter
	} else {
		d += jitter
	}
	if d < c.cfg.ReconnectDelay {
		d = c.cfg.ReconnectDelay
	}
	if d > c.cfg.ReconnectDelayMax {
		d = c.cfg.ReconnectDelayMax
	}
	return d
}

type conn struct {
	ws  *websocket.Conn
	mux sync.Mutex
}

func (c *conn) write(p []byte) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, p)
}

// session runs a single connection, reports whether the namespace connect succeeded.
func (c *Client) session(ctx context.Context, endpoint string) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	ws, _, err := c.dialer.DialContext(dialCtx, endpoint, c.header())
	cancel()
	if err != nil {
		return false, err
	}
	cn := &conn{ws: ws}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cn.mux.Lock()
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			cn.mux.Unlock()
			ws.Close()
		case <-done:
		}
	}()

	window := defaultPingWindow
	connected := false
	for {
		ws.SetReadDeadline(time.Now().Add(window))
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return connected, err
		}
		p, err := parsePacket(raw)
		if err != nil {
			c.log.Error(fmt.Sprintf("realtime packet: %s", err))
			continue
		}
		switch p.kind {
		case kindOpen:
			var h Handshake
			if err := json.Unmarshal(p.payload, &h); err == nil && h.PingInterval > 0 {
				window = time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
			}
			connect, _ := EncodeConnect(nil)
			if err := cn.write(connect); err != nil {
				return connected, err
			}
		case kindPing:
			if err := cn.write(pongPacket); err != nil {
				return connected, err
			}
		case kindConnect:
			connected = true
			c.log.Info("realtime channel connected")
			if c.onConnect != nil {
				c.onConnect()
			}
		case kindConnectError:
			return connected, errors.Join(ErrConnectRejected, errors.New(string(p.payload)))
		case kindDisconnect, kindClose:
			return connected, ErrClosedByServer
		case kindEvent:
			ev := Event{Name: p.name, Args: p.args, ReceivedAt: time.Now()}
			if dropped := c.events.Publish(ev); dropped > 0 {
				c.log.Warn(fmt.Sprintf("realtime event %s dropped for %d slow subscribers", ev.Name, dropped))
			}
		}
	}
}

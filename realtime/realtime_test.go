package realtime

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/bartossh/Rampart/entity"
)

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
func (nopLogger) Fatal(string) {}

func TestParsePacket(t *testing.T) {
	p, err := parsePacket([]byte(`42["tracking_evt"]`))
	require.NoError(t, err)
	assert.Equal(t, kindEvent, p.kind)
	assert.Equal(t, EventTracking, p.name)
	assert.Empty(t, p.args)

	p, err = parsePacket([]byte(`42/admin,7["tracking_aply",{"ok":true}]`))
	require.NoError(t, err)
	assert.Equal(t, EventApplied, p.name)
	require.Len(t, p.args, 1)
	assert.JSONEq(t, `{"ok":true}`, string(p.args[0]))

	p, err = parsePacket([]byte(`0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`))
	require.NoError(t, err)
	assert.Equal(t, kindOpen, p.kind)

	p, err = parsePacket([]byte(`2`))
	require.NoError(t, err)
	assert.Equal(t, kindPing, p.kind)

	p, err = parsePacket([]byte(`40{"sid":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, kindConnect, p.kind)

	_, err = parsePacket([]byte(`42{}`))
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, err = parsePacket([]byte(`9`))
	assert.ErrorIs(t, err, ErrMalformedPacket)
	_, err = parsePacket(nil)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestEncodeEvent(t *testing.T) {
	raw, err := EncodeEvent(EventTracking)
	require.NoError(t, err)
	assert.Equal(t, `42["tracking_evt"]`, string(raw))
}

func TestSocketURL(t *testing.T) {
	u, err := SocketURL("https://waf.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://waf.example.com/socket.io/?EIO=4&transport=websocket", u)

	u, err = SocketURL("http://127.0.0.1:8000")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8000/socket.io/?EIO=4&transport=websocket", u)

	again, err := SocketURL(u)
	require.NoError(t, err)
	assert.Equal(t, u, again)

	u, err = SocketURL("https://waf.example.com/admin/socket.io?EIO=3")
	require.NoError(t, err)
	assert.Equal(t, "wss://waf.example.com/admin/socket.io/?EIO=4&transport=websocket", u)

	_, err = SocketURL("ftp://x")
	assert.Error(t, err)
}

func TestBackoffWithinBounds(t *testing.T) {
	c := New(Config{URL: "http://h"}, nopLogger{})
	for attempt := 1; attempt <= 5; attempt++ {
		d := c.backoff(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 20*time.Second)
	}
}

// serveSocket runs a minimal socket.io server which sends the given events once the namespace is connected.
func serveSocket(t *testing.T, events ...string) (string, *sync.WaitGroup) {
	t.Helper()
	var pongs sync.WaitGroup
	pongs.Add(1)
	upgrader := websocket.FastHTTPUpgrader{}
	handler := func(ctx *fasthttp.RequestCtx) {
		err := upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
			defer ws.Close()
			open, _ := EncodeOpen(Handshake{SID: "s1", PingInterval: 25000, PingTimeout: 20000})
			ws.WriteMessage(websocket.TextMessage, open)
			_, raw, err := ws.ReadMessage()
			if err != nil || string(raw) != "40" {
				return
			}
			ws.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"n1"}`))
			ws.WriteMessage(websocket.TextMessage, []byte("2"))
			_, raw, err = ws.ReadMessage()
			if err == nil && string(raw) == "3" {
				pongs.Done()
			}
			for _, name := range events {
				ev, _ := EncodeEvent(name)
				ws.WriteMessage(websocket.TextMessage, ev)
			}
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		})
		if err != nil {
			t.Log(err)
		}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fasthttp.Server{Handler: handler}
	go s.Serve(ln)
	t.Cleanup(func() { s.Shutdown() })
	return "http://" + ln.Addr().String(), &pongs
}

func TestClientReceivesEvents(t *testing.T) {
	base, pongs := serveSocket(t, EventTracking, EventApplied)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 1)
	c := New(Config{URL: base, ReconnectAttempts: -1}, nopLogger{}, WithOnConnect(func() { connected <- struct{}{} }))
	sub := c.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("not connected")
	}

	var names []string
	for len(names) < 2 {
		select {
		case ev := <-sub.Channel():
			names = append(names, ev.Name)
		case <-time.After(2 * time.Second):
			t.Fatal("events not received")
		}
	}
	assert.Equal(t, []string{EventTracking, EventApplied}, names)
	pongs.Wait()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestClientReconnectExhausted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := New(Config{
		URL:               "http://" + addr,
		ReconnectAttempts: 2,
		ReconnectDelay:    time.Millisecond,
		ReconnectDelayMax: 2 * time.Millisecond,
	}, nopLogger{})
	err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrReconnectExhausted)
}

type healthStub struct {
	status entity.HealthStatus
}

func (h healthStub) Health(context.Context) (entity.HealthStatus, error) {
	return h.status, nil
}

func TestApplyTracker(t *testing.T) {
	tr := NewApplyTracker(healthStub{entity.HealthStatus{
		ApplyPending: []entity.Change{{Name: "service"}},
		ApplyActive:  true,
	}}, nil)
	changes := tr.Changes()
	defer changes.Cancel()

	active, err := tr.Init(context.Background())
	require.NoError(t, err)
	assert.True(t, active)
	assert.True(t, tr.Pending())
	assert.True(t, <-changes.Channel())

	tr.Handle(Event{Name: EventApplied})
	assert.False(t, tr.Pending())
	assert.False(t, <-changes.Channel())

	tr.Handle(Event{Name: "unrelated"})
	assert.False(t, tr.Pending())

	tr.Handle(Event{Name: EventTracking})
	assert.True(t, tr.Pending())
}

func TestApplyTrackerWatch(t *testing.T) {
	c := New(Config{URL: "http://h"}, nopLogger{})
	sub := c.Subscribe()
	tr := NewApplyTracker(healthStub{}, nil)

	_, err := tr.Init(context.Background())
	require.NoError(t, err)
	assert.False(t, tr.Pending())

	done := make(chan struct{})
	go func() {
		tr.Watch(context.Background(), sub)
		close(done)
	}()
	c.events.Publish(Event{Name: EventTracking, Args: []json.RawMessage{}})
	sub.Cancel()
	<-done
	assert.True(t, tr.Pending())
}

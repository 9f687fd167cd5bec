package emulator

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/realtime"
)

const (
	hubInnerChannelsBufferSize      = 100
	socketWriteWait                 = 10 * time.Second
	socketPingInterval              = 25 * time.Second
	socketPingTimeout               = 20 * time.Second
	socketMaxMessageSize            = 1_000_000
	clientMessageChannelsBufferSize = 64
	socketsCountLimit               = 256
)

type socket struct {
	sid  string
	hub  *hub
	conn *websocket.Conn
	send chan []byte
	log  logger.Logger
}

func newSID() string {
	u := uuid.New()
	return base58.Encode(u[:])
}

func (s *Server) wsWrapper(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if c.Query("EIO") != "4" || c.Query("transport") != "websocket" {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported transport")
	}

	client := &socket{
		sid:  newSID(),
		hub:  s.hub,
		send: make(chan []byte, clientMessageChannelsBufferSize),
		log:  s.log,
	}
	serveWs := func(conn *websocket.Conn) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		client.conn = conn
		open, err := realtime.EncodeOpen(realtime.Handshake{
			SID:          client.sid,
			Upgrades:     []string{},
			PingInterval: int(socketPingInterval.Milliseconds()),
			PingTimeout:  int(socketPingTimeout.Milliseconds()),
			MaxPayload:   socketMaxMessageSize,
		})
		if err != nil {
			s.log.Error(fmt.Sprintf("socket handshake encoding failed: %s", err))
			return
		}
		client.send <- open
		go client.writePump(ctx, cancel)
		client.readPump(ctx, cancel)
	}
	s.log.Info(fmt.Sprintf("socket new connection from address: %s accepted", c.IP()))

	return websocket.New(serveWs)(c)
}

func (c *socket) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(socketMaxMessageSize)
	for {
		c.conn.SetReadDeadline(time.Now().Add(socketPingInterval + socketPingTimeout))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				c.log.Info(fmt.Sprintf("socket %s closing due to unexpected error %s", c.sid, err))
			default:
				c.log.Debug(fmt.Sprintf("socket %s closing due to %s", c.sid, err))
			}
			return
		}
		if len(raw) == 0 {
			continue
		}
		switch {
		case raw[0] == '1':
			return
		case raw[0] == '2':
			c.enqueue([]byte{'3'})
		case raw[0] == '3':
		case len(raw) > 1 && raw[0] == '4' && raw[1] == '0':
			connect, err := realtime.EncodeConnect(map[string]string{"sid": c.sid})
			if err != nil {
				c.log.Error(fmt.Sprintf("socket %s connect encoding failed: %s", c.sid, err))
				return
			}
			c.enqueue(connect)
			c.hub.register <- c
		case len(raw) > 1 && raw[0] == '4' && raw[1] == '1':
			return
		default:
			c.log.Debug(fmt.Sprintf("socket %s ignored packet %q", c.sid, raw))
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *socket) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	default:
		c.log.Warn(fmt.Sprintf("socket %s send buffer full, packet dropped", c.sid))
	}
}

func (c *socket) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(socketPingInterval)
	defer func() {
		ticker.Stop()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if !ok {
				cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Error(fmt.Sprintf("socket closing connection to the client %s due to %s", c.sid, err))
				cancel()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte{'2'}); err != nil {
				c.log.Error(fmt.Sprintf("socket closing connection to the client %s due to %s", c.sid, err))
				cancel()
				return
			}
		}
	}
}

type hub struct {
	clients    map[string]*socket
	broadcast  chan []byte
	register   chan *socket
	unregister chan *socket
	log        logger.Logger
}

func newHub(log logger.Logger) *hub {
	return &hub{
		broadcast:  make(chan []byte, hubInnerChannelsBufferSize),
		register:   make(chan *socket, hubInnerChannelsBufferSize),
		unregister: make(chan *socket, hubInnerChannelsBufferSize),
		clients:    make(map[string]*socket, hubInnerChannelsBufferSize),
		log:        log,
	}
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			if len(h.clients) >= socketsCountLimit {
				h.log.Warn(fmt.Sprintf("socket %s rejected, max number of sockets reached", client.sid))
				client.enqueue([]byte("44{\"message\":\"too many connections\"}"))
				continue
			}
			h.clients[client.sid] = client
		case client := <-h.unregister:
			delete(h.clients, client.sid)
		case raw := <-h.broadcast:
			for _, client := range h.clients {
				client.enqueue(raw)
			}
		case <-ctx.Done():
			for sid := range h.clients {
				delete(h.clients, sid)
			}
			return
		}
	}
}

// emit queues the event for every connected socket.
func (h *hub) emit(name string, args ...any) {
	raw, err := realtime.EncodeEvent(name, args...)
	if err != nil {
		h.log.Error(fmt.Sprintf("hub failed to encode event %s: %s", name, err))
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		h.log.Warn(fmt.Sprintf("hub broadcast buffer full, event %s dropped", name))
	}
}

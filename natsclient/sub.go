package natsclient

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/realtime"
)

// Subscriber provides functionality to pull messages from the pub/sub queue.
type Subscriber struct {
	*socket
}

// SubscriberConnect connects subscriber to the pub/sub queue using provided config
func SubscriberConnect(cfg Config) (*Subscriber, error) {
	s, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{socket: s}, nil
}

// SubscribeEvents calls handle for every relayed event. Undecodable messages are logged and skipped.
func (s *Subscriber) SubscribeEvents(handle func(realtime.Event), log logger.Logger) (*nats.Subscription, error) {
	return s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		ev, err := decodeEvent(msg.Data)
		if err != nil {
			log.Error(fmt.Sprintf("relayed event: %s", err))
			return
		}
		handle(ev)
	})
}

package natsclient

import (
	"context"
	"fmt"

	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/reactive"
	"github.com/bartossh/Rampart/realtime"
)

// Publisher provides functionality to push messages to the pub/sub queue
type Publisher struct {
	*socket
}

// PublisherConnect connects publisher to the pub/sub queue using provided config
func PublisherConnect(cfg Config) (*Publisher, error) {
	s, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{socket: s}, nil
}

// PublishEvent publishes realtime event as protobuf struct.
func (p *Publisher) PublishEvent(ev realtime.Event) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, msg)
}

// Relay publishes every event received from sub until ctx is done or sub is cancelled.
func (p *Publisher) Relay(ctx context.Context, sub *reactive.Subscription[realtime.Event], log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := p.PublishEvent(ev); err != nil {
				log.Error(fmt.Sprintf("relay event %s failed: %s", ev.Name, err))
			}
		}
	}
}

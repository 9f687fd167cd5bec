package natsclient

import (
	"net/url"

	"github.com/nats-io/nats.go"
)

// SubjectTracking is the subject realtime tracking events are relayed on.
const SubjectTracking string = "rampart.tracking"

// Config contains all arguments required to connect to the nats service.
type Config struct {
	Address string `yaml:"server_address"`
	Name    string `yaml:"client_name"`
	Token   string `yaml:"token"`
	Subject string `yaml:"subject"` // defaults to rampart.tracking
}

func (c Config) subject() string {
	if c.Subject == "" {
		return SubjectTracking
	}
	return c.Subject
}

type socket struct {
	conn    *nats.Conn
	subject string
}

func connect(cfg Config) (*socket, error) {
	if _, err := url.Parse(cfg.Address); err != nil {
		return nil, err
	}
	opts := []nats.Option{nats.Name(cfg.Name)}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	conn, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, err
	}
	return &socket{conn: conn, subject: cfg.subject()}, nil
}

// Disconnect drains the message queue and disconnects from the pub/sub.
// All subscriptions will immediately be put into a drain state.
// Upon completion, the publishers will be drained and can not publish any additional messages.
func (s *socket) Disconnect() error {
	return s.conn.Drain()
}

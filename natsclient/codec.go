package natsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bartossh/Rampart/realtime"
)

var ErrInvalidPayload = errors.New("invalid event payload")

func encodeEvent(ev realtime.Event) ([]byte, error) {
	args := make([]any, 0, len(ev.Args))
	for _, raw := range ev.Args {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		args = append(args, v)
	}
	s, err := structpb.NewStruct(map[string]any{
		"name":        ev.Name,
		"received_at": ev.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"args":        args,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	return proto.Marshal(s)
}

func decodeEvent(raw []byte) (realtime.Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(raw, &s); err != nil {
		return realtime.Event{}, errors.Join(ErrInvalidPayload, err)
	}
	m := s.AsMap()
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return realtime.Event{}, errors.Join(ErrInvalidPayload, fmt.Errorf("missing name"))
	}
	ev := realtime.Event{Name: name}
	if ts, ok := m["received_at"].(string); ok {
		ev.ReceivedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if args, ok := m["args"].([]any); ok {
		for _, a := range args {
			raw, err := json.Marshal(a)
			if err != nil {
				return realtime.Event{}, errors.Join(ErrInvalidPayload, err)
			}
			ev.Args = append(ev.Args, raw)
		}
	}
	return ev, nil
}

package natsclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/realtime"
)

func TestEventCodec(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	ev := realtime.Event{
		Name:       realtime.EventTracking,
		Args:       []json.RawMessage{json.RawMessage(`{"resource":"service"}`), json.RawMessage(`3`)},
		ReceivedAt: at,
	}
	raw, err := encodeEvent(ev)
	require.NoError(t, err)

	got, err := decodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.Name, got.Name)
	assert.True(t, at.Equal(got.ReceivedAt))
	require.Len(t, got.Args, 2)
	assert.JSONEq(t, `{"resource":"service"}`, string(got.Args[0]))
	assert.JSONEq(t, `3`, string(got.Args[1]))
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := decodeEvent([]byte{0xff, 0x01})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEncodeEventRejectsInvalidArgs(t *testing.T) {
	_, err := encodeEvent(realtime.Event{Name: "x", Args: []json.RawMessage{json.RawMessage(`{`)}})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

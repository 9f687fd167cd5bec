package emulator_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/emulator"
	"github.com/bartossh/Rampart/emulator/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, emulator.NewMemory(), "")
}

func TestMatches(t *testing.T) {
	body := json.RawMessage(`{"_id":"x","name":"Edge Proxy","port":443,"tags":["a"]}`)

	ok, err := emulator.Matches(body, emulator.Filter{Equals: map[string]any{"port": 443}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = emulator.Matches(body, emulator.Filter{Equals: map[string]any{"port": "443"}})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = emulator.Matches(body, emulator.Filter{Match: map[string]string{"name": "(?i)proxy"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = emulator.Matches(body, emulator.Filter{Match: map[string]string{"port": "443"}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = emulator.Matches(json.RawMessage(`[`), emulator.Filter{Equals: map[string]any{"a": 1}})
	assert.ErrorIs(t, err, emulator.ErrInvalidRecord)
}

func TestRecordOf(t *testing.T) {
	rec, err := emulator.RecordOf([]byte(`{"_id":12,"name":"cat"}`))
	require.NoError(t, err)
	assert.Equal(t, "12", rec.ID)

	_, err = emulator.RecordOf([]byte(`{"name":"cat"}`))
	assert.ErrorIs(t, err, emulator.ErrInvalidRecord)
}

package uiconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/localstorage"
)

func TestLoadPersistsDefaults(t *testing.T) {
	storage := memory(t)
	c, err := Load(storage)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c.Values())

	var stored Values
	ok, err := storage.Get(Key, &stored)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "en_US", stored.Locale)
	assert.Equal(t, "dashboard", stored.NavResource)
	assert.True(t, stored.SidenavOpened)
}

func TestLoadKeepsStoredValues(t *testing.T) {
	storage := memory(t)
	require.NoError(t, storage.Set(Key, Values{Locale: "pt_BR", NavResource: "service"}))

	c, err := Load(storage)
	require.NoError(t, err)
	v := c.Values()
	assert.Equal(t, "pt_BR", v.Locale)
	assert.Equal(t, "service", v.NavResource)
	assert.False(t, v.SidenavOpened)
	assert.Equal(t, DefaultDatetime, v.Display.Datetime)
}

func TestToggleAndLocalePersist(t *testing.T) {
	storage := memory(t)
	c, err := Load(storage)
	require.NoError(t, err)

	opened, err := c.ToggleSidenav()
	require.NoError(t, err)
	assert.False(t, opened)
	require.NoError(t, c.SetLocale("pt_BR"))
	assert.Error(t, c.SetLocale(""))

	reloaded, err := Load(storage)
	require.NoError(t, err)
	assert.False(t, reloaded.Values().SidenavOpened)
	assert.Equal(t, "pt_BR", reloaded.Values().Locale)
}

func TestFormatTime(t *testing.T) {
	c, err := Load(memory(t))
	require.NoError(t, err)
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	assert.Equal(t, "2024-05-06T07:08:09", c.FormatTime(ts))
}

func memory(t *testing.T) *localstorage.Store {
	t.Helper()
	s, err := localstorage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

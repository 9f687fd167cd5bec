package uiconfig

import (
	"errors"
	"sync"
	"time"
)

// Key is the storage key of the persisted Config.
const Key = "ui_config"

const (
	DefaultLocale      = "en_US"
	DefaultNavResource = "dashboard"
	DefaultDatetime    = "2006-01-02T15:04:05"
)

var ErrStorageFailed = errors.New("ui config storage failed")

// Storage is the key value port the configuration is persisted in.
type Storage interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

type Display struct {
	Datetime string `json:"datetime"`
}

// Values are the user interface preferences.
type Values struct {
	Locale        string  `json:"locale"`
	NavResource   string  `json:"navResource"`
	SidenavOpened bool    `json:"sidenavOpened"`
	Display       Display `json:"display"`
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Values {
	return Values{
		Locale:        DefaultLocale,
		NavResource:   DefaultNavResource,
		SidenavOpened: true,
		Display:       Display{Datetime: DefaultDatetime},
	}
}

// Config holds the preferences loaded at boot. Changes are persisted only by Save.
type Config struct {
	mux     sync.RWMutex
	storage Storage
	values  Values
}

// Load reads the stored preferences, persisting the defaults when absent.
func Load(storage Storage) (*Config, error) {
	c := &Config{storage: storage}
	var v Values
	ok, err := storage.Get(Key, &v)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	if !ok {
		c.values = Defaults()
		if err := c.Save(); err != nil {
			return nil, err
		}
		return c, nil
	}
	if v.Display.Datetime == "" {
		v.Display.Datetime = DefaultDatetime
	}
	if v.Locale == "" {
		v.Locale = DefaultLocale
	}
	c.values = v
	return c, nil
}

// Values returns current preferences.
func (c *Config) Values() Values {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.values
}

// Save persists current preferences.
func (c *Config) Save() error {
	c.mux.RLock()
	v := c.values
	c.mux.RUnlock()
	if err := c.storage.Set(Key, v); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

// ToggleSidenav flips the side navigation state and persists it.
func (c *Config) ToggleSidenav() (bool, error) {
	c.mux.Lock()
	c.values.SidenavOpened = !c.values.SidenavOpened
	opened := c.values.SidenavOpened
	c.mux.Unlock()
	return opened, c.Save()
}

// SetLocale changes the locale and persists it.
func (c *Config) SetLocale(locale string) error {
	if locale == "" {
		return errors.New("empty locale")
	}
	c.mux.Lock()
	c.values.Locale = locale
	c.mux.Unlock()
	return c.Save()
}

// SetNavResource changes the landing resource and persists it.
func (c *Config) SetNavResource(resource string) error {
	c.mux.Lock()
	c.values.NavResource = resource
	c.mux.Unlock()
	return c.Save()
}

// FormatTime formats t in the local zone with the display layout.
func (c *Config) FormatTime(t time.Time) string {
	c.mux.RLock()
	layout := c.values.Display.Datetime
	c.mux.RUnlock()
	return t.Local().Format(layout)
}

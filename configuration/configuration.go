package configuration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/bartossh/Rampart/emulator"
	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/localstorage"
	"github.com/bartossh/Rampart/logging"
	"github.com/bartossh/Rampart/natsclient"
	"github.com/bartossh/Rampart/realtime"
	"github.com/bartossh/Rampart/telemetry"
)

const defaultBaseURL = "http://localhost:8000"

// Environment variables overriding the file configuration.
const (
	EnvBaseURL         = "RAMPART_BASE_URL"
	EnvStoragePath     = "RAMPART_STORAGE_PATH"
	EnvLogLevel        = "RAMPART_LOG_LEVEL"
	EnvNatsAddress     = "RAMPART_NATS_ADDRESS"
	EnvNatsToken       = "RAMPART_NATS_TOKEN"
	EnvTelemetryPort   = "RAMPART_TELEMETRY_PORT"
	EnvEmulatorPort    = "RAMPART_EMULATOR_PORT"
	EnvEmulatorSecret  = "RAMPART_EMULATOR_SECRET"
	EnvEmulatorStorage = "RAMPART_EMULATOR_STORAGE"
	EnvMongoURI        = "RAMPART_MONGO_URI"
	EnvPostgresDSN     = "RAMPART_POSTGRES_DSN"
)

var ErrInvalidEnv = errors.New("invalid environment variable")

// Configuration is the main configuration of the application that corresponds to the *.yaml file
// that holds the configuration.
type Configuration struct {
	Client    httpclient.Config   `yaml:"client"`
	Storage   localstorage.Config `yaml:"storage"`
	Realtime  realtime.Config     `yaml:"realtime"`
	Nats      natsclient.Config   `yaml:"nats"`
	Telemetry telemetry.Config    `yaml:"telemetry"`
	Emulator  emulator.Config     `yaml:"emulator"`
	Logging   logging.Config      `yaml:"logging"`
}

// Read reads the configuration from the file and returns the Configuration with set fields according to the yaml setup.
func Read(path string) (Configuration, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}

	var main Configuration
	err = yaml.Unmarshal(buf, &main)
	if err != nil {
		return Configuration{}, fmt.Errorf("in file %q: %w", path, err)
	}

	return main, err
}

// Load reads the file when path is given, loads the env file when it exists and applies environment overrides.
func Load(path, envFile string) (Configuration, error) {
	var cfg Configuration
	if path != "" {
		var err error
		if cfg, err = Read(path); err != nil {
			return cfg, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("env file %q: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if cfg.Client.BaseURL == "" {
		cfg.Client.BaseURL = defaultBaseURL
	}
	if cfg.Realtime.URL == "" {
		cfg.Realtime.URL = cfg.Client.BaseURL
	}
	if cfg.Storage.Path == "" {
		path, err := localstorage.DefaultPath()
		if err != nil {
			return cfg, err
		}
		cfg.Storage.Path = path
	}
	return cfg, nil
}

func (c *Configuration) applyEnv() error {
	strs := map[string]*string{
		EnvBaseURL:         &c.Client.BaseURL,
		EnvStoragePath:     &c.Storage.Path,
		EnvLogLevel:        &c.Logging.Level,
		EnvNatsAddress:     &c.Nats.Address,
		EnvNatsToken:       &c.Nats.Token,
		EnvEmulatorSecret:  &c.Emulator.Secret,
		EnvEmulatorStorage: &c.Emulator.Storage,
		EnvMongoURI:        &c.Emulator.MongoURI,
		EnvPostgresDSN:     &c.Emulator.PostgresDSN,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		EnvTelemetryPort: &c.Telemetry.Port,
		EnvEmulatorPort:  &c.Emulator.Port,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Join(ErrInvalidEnv, fmt.Errorf("%s=%q: %w", key, v, err))
		}
		*dst = n
	}
	return nil
}

package logging

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bartossh/Rampart/logger"
)

// Levels in order of severity.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

var levels = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// ErrUnknownLevel is returned when the configured level is not one of the supported levels.
var ErrUnknownLevel = errors.New("unknown log level")

// Config configures the logging Helper.
type Config struct {
	Level  string `yaml:"level"`  // minimal level written, defaults to info
	Source string `yaml:"source"` // name of the component attached to each record
}

// Helper helps with writing logs to io.Writers.
// Helper implements logger.Logger interface.
// Writing is done concurrently with out blocking the current thread.
type Helper struct {
	callOnErr   func(error)
	callOnFatal func(error)
	writers     []io.Writer
	source      string
	floor       int
}

// New creates new Helper.
// callOnErr is called when marshaling or writing fails, callOnFatal is called after a fatal record is written.
func New(cfg Config, callOnErr, callOnFatal func(error), writers ...io.Writer) (Helper, error) {
	lvl := strings.ToLower(cfg.Level)
	if lvl == "" {
		lvl = LevelInfo
	}
	floor, ok := levels[lvl]
	if !ok {
		return Helper{}, errors.Join(ErrUnknownLevel, errors.New(cfg.Level))
	}
	return Helper{
		callOnErr:   callOnErr,
		callOnFatal: callOnFatal,
		writers:     writers,
		source:      cfg.Source,
		floor:       floor,
	}, nil
}

// Debug writes debug log.
func (h Helper) Debug(msg string) {
	h.log(LevelDebug, msg)
}

// Info writes info log.
func (h Helper) Info(msg string) {
	h.log(LevelInfo, msg)
}

// Warn writes warning log.
func (h Helper) Warn(msg string) {
	h.log(LevelWarn, msg)
}

// Error writes error log.
func (h Helper) Error(msg string) {
	h.log(LevelError, msg)
}

// Fatal writes fatal log.
func (h Helper) Fatal(msg string) {
	h.log(LevelFatal, msg)
}

func (h Helper) log(level, msg string) {
	if levels[level] < h.floor {
		return
	}
	l := logger.Log{
		ID:        primitive.NewObjectID(),
		Level:     level,
		Source:    h.source,
		Msg:       msg,
		CreatedAt: time.Now(),
	}
	h.write(&l)
}

func (h Helper) write(l *logger.Log) {
	go func() {
		raw, err := json.Marshal(l)
		if err != nil {
			h.onErr(err)
			return
		}
		for _, w := range h.writers {
			if _, err := w.Write(raw); err != nil {
				h.onErr(err)
			}
		}
		if l.Level == LevelFatal && h.callOnFatal != nil {
			h.callOnFatal(errors.New(l.Msg))
		}
	}()
}

func (h Helper) onErr(err error) {
	if h.callOnErr != nil {
		h.callOnErr(err)
	}
}

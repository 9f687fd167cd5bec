package stdoutwriter

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/bartossh/Rampart/logger"
)

// Logger writes JSON encoded logger.Log records to the terminal using pterm prefixes per level.
// Payloads that are not log records are printed as they are.
type Logger struct{}

func (l Logger) Write(p []byte) (n int, err error) {
	var rec logger.Log
	if err := json.Unmarshal(p, &rec); err != nil || rec.Level == "" {
		fmt.Println(string(p))
		return len(p), nil
	}

	msg := rec.Msg
	if rec.Source != "" {
		msg = fmt.Sprintf("[%s] %s", rec.Source, rec.Msg)
	}
	msg = fmt.Sprintf("%s %s", rec.CreatedAt.Format("15:04:05.000"), msg)

	switch rec.Level {
	case "debug":
		pterm.Debug.Println(msg)
	case "info":
		pterm.Info.Println(msg)
	case "warn":
		pterm.Warning.Println(msg)
	case "error":
		pterm.Error.Println(msg)
	case "fatal":
		pterm.Fatal.WithFatal(false).Println(msg)
	default:
		pterm.Println(msg)
	}
	return len(p), nil
}

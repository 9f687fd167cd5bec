package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/bartossh/Rampart/authmiddleware"
	"github.com/bartossh/Rampart/client"
	"github.com/bartossh/Rampart/configuration"
	"github.com/bartossh/Rampart/localstorage"
	"github.com/bartossh/Rampart/logger"
	"github.com/bartossh/Rampart/logging"
	"github.com/bartossh/Rampart/logo"
	"github.com/bartossh/Rampart/notification"
	"github.com/bartossh/Rampart/session"
	"github.com/bartossh/Rampart/stdoutwriter"
	"github.com/bartossh/Rampart/uiconfig"
)

const usage = `Rampart administers web application firewall clusters.
Sign in once with login, the session is kept in the local storage file and refreshed when it expires.`

const timeout = time.Second * 30

// env wires the components every command uses.
type env struct {
	cfg     configuration.Configuration
	storage *localstorage.Store
	log     logger.Logger
	notes   *notification.Snackbar
	rest    *client.Rest
	ui      *uiconfig.Config
}

func main() {
	var file, envFile, baseURL string
	var e env

	setup := func(cCtx *cli.Context, detached bool, opts ...authmiddleware.Option) error {
		cfg, err := configuration.Load(file, envFile)
		if err != nil {
			return err
		}
		if baseURL != "" {
			cfg.Client.BaseURL = baseURL
			cfg.Realtime.URL = baseURL
		}
		if cfg.Logging.Source == "" {
			cfg.Logging.Source = "rampart"
		}
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = logging.LevelWarn
		}
		log, err := logging.New(cfg.Logging,
			func(err error) { fmt.Println("error with logger: ", err) },
			func(err error) { panic(fmt.Sprintf("error with logger: %s", err)) },
			stdoutwriter.Logger{},
		)
		if err != nil {
			return err
		}
		storage, err := localstorage.New(cfg.Storage, log)
		if err != nil {
			return err
		}
		if detached {
			mem, err := storage.Snapshot()
			if cErr := storage.Close(); cErr != nil {
				err = errors.Join(err, cErr)
			}
			if err != nil {
				return err
			}
			storage = mem
		}
		ui, err := uiconfig.Load(storage)
		if err != nil {
			return err
		}
		notes := notification.New(os.Stderr)
		nav := session.NavigatorFunc(func() {
			notes.Notify("Session expired, sign in with: rampart login")
		})
		e = env{
			cfg:     cfg,
			storage: storage,
			log:     log,
			notes:   notes,
			rest:    client.NewRest(cfg.Client, storage, nav, notes, log, opts...),
			ui:      ui,
		}
		return nil
	}

	app := &cli.App{
		Name:  "rampart",
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Load configuration from `FILE`",
				Destination: &file,
			},
			&cli.StringFlag{
				Name:        "env",
				Aliases:     []string{"e"},
				Usage:       "Load environment overrides from `FILE`",
				Value:       ".env",
				Destination: &envFile,
			},
			&cli.StringFlag{
				Name:        "url",
				Aliases:     []string{"u"},
				Usage:       "Management API base `URL`",
				EnvVars:     []string{configuration.EnvBaseURL},
				Destination: &baseURL,
			},
		},
		Before: func(cCtx *cli.Context) error {
			if cCtx.Args().First() == "watch" {
				logo.Display()
			}
			return nil
		},
		Commands: append(append(append(
			sessionCommands(&e, setup),
			resourceCommands(&e, setup)...),
			clusterCommands(&e, setup)...),
			watchCommand(&e, setup), uiCommand(&e, setup)),
	}

	err := app.Run(os.Args)
	if e.storage != nil {
		if cErr := e.storage.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
	}
	if err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

// setupFunc builds env. A detached env works on an in memory copy of the storage
// so long running commands do not hold the storage lock.
type setupFunc func(cCtx *cli.Context, detached bool, opts ...authmiddleware.Option) error

// withEnv runs action after setup with a context canceled on interrupt or after the timeout.
func withEnv(setup setupFunc, action func(ctx context.Context, cCtx *cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if err := setup(cCtx, false); err != nil {
			return err
		}
		ctx, cancel := signalContext(timeout)
		defer cancel()
		return action(ctx, cCtx)
	}
}

func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx, cancel
}

var errArgs = errors.New("wrong number of arguments")

func requireArgs(cCtx *cli.Context, n int) error {
	if cCtx.NArg() != n {
		return errors.Join(errArgs, fmt.Errorf("expected %d, got %d, usage: %s %s", n, cCtx.NArg(), cCtx.Command.Name, cCtx.Command.ArgsUsage))
	}
	return nil
}

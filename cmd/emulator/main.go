package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/bartossh/Rampart/configuration"
	"github.com/bartossh/Rampart/emulator"
	"github.com/bartossh/Rampart/logging"
	"github.com/bartossh/Rampart/logo"
	"github.com/bartossh/Rampart/repomongo"
	"github.com/bartossh/Rampart/repopostgre"
	"github.com/bartossh/Rampart/stdoutwriter"
)

const usage = `Emulator serves the management API of a Rampart cluster for development and tests.
Records are kept in memory unless MongoDB or PostgreSQL storage is configured.`

const connectTimeout = time.Second * 10

var ErrUnknownStorage = errors.New("unknown emulator storage, use memory, mongo or postgres")

func main() {
	logo.Display()

	var file, envFile string
	app := &cli.App{
		Name:  "emulator",
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
		},
		Action: func(_ *cli.Context) error {
			cfg, err := configuration.Load(file, envFile)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

type repository interface {
	emulator.Repository
	io.Writer
}

func connect(ctx context.Context, cfg emulator.Config) (emulator.Repository, io.Writer, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var (
		repo repository
		err  error
	)
	switch cfg.Storage {
	case "", "memory":
		return emulator.NewMemory(), nil, nil
	case "mongo":
		var db *repomongo.DataBase
		db, err = repomongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		if _, err = db.RunMigrations(ctx); err != nil {
			return nil, nil, err
		}
		repo = db
	case "postgres":
		repo, err = repopostgre.Connect(ctx, cfg.PostgresDSN)
	default:
		return nil, nil, errors.Join(ErrUnknownStorage, fmt.Errorf("storage %q", cfg.Storage))
	}
	if err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}

func run(cfg configuration.Configuration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		cancel()
	}()

	callbackOnErr := func(err error) {
		fmt.Println("error with logger: ", err)
	}
	callbackOnFatal := func(err error) {
		panic(fmt.Sprintf("error with logger: %s", err))
	}

	repo, dbLog, err := connect(ctx, cfg.Emulator)
	if err != nil {
		return err
	}
	writers := []io.Writer{stdoutwriter.Logger{}}
	if dbLog != nil {
		writers = append(writers, dbLog)
	}
	if cfg.Logging.Source == "" {
		cfg.Logging.Source = "emulator"
	}
	log, err := logging.New(cfg.Logging, callbackOnErr, callbackOnFatal, writers...)
	if err != nil {
		return err
	}

	srv, err := emulator.New(ctx, cfg.Emulator, repo, log)
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("emulator listening on port %d with %s storage", cfg.Emulator.Port, storageName(cfg.Emulator.Storage)))
	return srv.Run(ctx)
}

func storageName(s string) string {
	if s == "" {
		return "memory"
	}
	return s
}

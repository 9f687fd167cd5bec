package main

import (
	"context"
	"errors"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
)

var errCredentials = errors.New("provide --email and --password or --provider and --code")

func sessionCommands(e *env, setup setupFunc) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "login",
			Usage: "signs in and stores the session",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", EnvVars: []string{"RAMPART_EMAIL"}},
				&cli.StringFlag{Name: "password", EnvVars: []string{"RAMPART_PASSWORD"}},
				&cli.StringFlag{Name: "provider", Usage: "external identity `PROVIDER`"},
				&cli.StringFlag{Name: "code", Usage: "authorization `CODE` returned by the provider"},
			},
			Action: withEnv(setup, func(ctx context.Context, cCtx *cli.Context) error {
				var err error
				switch {
				case cCtx.String("provider") != "" && cCtx.String("code") != "":
					_, err = e.rest.OAuth.AuthorizeCode(ctx, cCtx.String("provider"), cCtx.String("code"))
				case cCtx.String("email") != "" && cCtx.String("password") != "":
					_, err = e.rest.OAuth.Login(ctx, cCtx.String("email"), cCtx.String("password"))
				default:
					return errCredentials
				}
				if err != nil {
					return err
				}
				p, err := e.rest.Session.Profile()
				if err != nil {
					return err
				}
				pterm.Success.Printfln("Signed in as %s (%s)", p.Email, p.Role)
				return nil
			}),
		},
		{
			Name:  "logout",
			Usage: "signs out and removes the stored session",
			Action: withEnv(setup, func(ctx context.Context, _ *cli.Context) error {
				if err := e.rest.OAuth.Logout(ctx); err != nil {
					e.log.Warn(err.Error())
				}
				pterm.Success.Println("Signed out")
				return nil
			}),
		},
		{
			Name:  "whoami",
			Usage: "prints the signed in profile",
			Action: withEnv(setup, func(_ context.Context, _ *cli.Context) error {
				p, err := e.rest.Session.Profile()
				if err != nil {
					return err
				}
				expires, err := e.rest.Session.ExpiresAt()
				if err != nil {
					return err
				}
				return pterm.DefaultTable.WithData(pterm.TableData{
					{"id", p.ID},
					{"name", p.Name},
					{"email", p.Email},
					{"role", p.Role},
					{"locale", p.Locale},
					{"access expires", e.ui.FormatTime(expires.In(time.Local))},
				}).Render()
			}),
		},
	}
}

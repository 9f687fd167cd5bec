package main

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
)

func uiCommand(e *env, setup setupFunc) *cli.Command {
	show := func() error {
		v := e.ui.Values()
		return pterm.DefaultTable.WithData(pterm.TableData{
			{"locale", v.Locale},
			{"navigation", v.NavResource},
			{"sidenav opened", pterm.Sprint(v.SidenavOpened)},
			{"datetime format", v.Display.Datetime},
		}).Render()
	}
	return &cli.Command{
		Name:  "ui",
		Usage: "shows and changes interface preferences",
		Action: withEnv(setup, func(context.Context, *cli.Context) error {
			return show()
		}),
		Subcommands: []*cli.Command{
			{
				Name:      "locale",
				ArgsUsage: "<locale>",
				Action: withEnv(setup, func(_ context.Context, cCtx *cli.Context) error {
					if err := requireArgs(cCtx, 1); err != nil {
						return err
					}
					if err := e.ui.SetLocale(cCtx.Args().First()); err != nil {
						return err
					}
					return show()
				}),
			},
			{
				Name:      "nav",
				ArgsUsage: "<resource>",
				Action: withEnv(setup, func(_ context.Context, cCtx *cli.Context) error {
					if err := requireArgs(cCtx, 1); err != nil {
						return err
					}
					if err := e.ui.SetNavResource(cCtx.Args().First()); err != nil {
						return err
					}
					return show()
				}),
			},
			{
				Name: "sidenav",
				Action: withEnv(setup, func(context.Context, *cli.Context) error {
					if _, err := e.ui.ToggleSidenav(); err != nil {
						return err
					}
					return show()
				}),
			},
		},
	}
}

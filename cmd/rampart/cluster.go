package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/bartossh/Rampart/api"
)

func clusterCommands(e *env, setup setupFunc) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "health",
			Usage: "prints pending changes and apply state",
			Action: withEnv(setup, func(ctx context.Context, _ *cli.Context) error {
				h, err := e.rest.Cluster.Health(ctx)
				if err != nil {
					return err
				}
				data := pterm.TableData{{"change", "since"}}
				for _, c := range h.ApplyPending {
					since := ""
					if c.CreatedOn != nil {
						since = e.ui.FormatTime(c.CreatedOn.In(time.Local))
					}
					data = append(data, []string{c.Name, since})
				}
				if h.Pending() {
					if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
						return err
					}
					pterm.Warning.Println("Changes wait to be applied")
				} else {
					pterm.Success.Println("Nothing to apply")
				}
				if h.ApplyActive {
					pterm.Info.Println("Apply in progress")
				}
				return nil
			}),
		},
		{
			Name:  "apply",
			Usage: "pushes pending changes to the cluster",
			Action: withEnv(setup, func(ctx context.Context, _ *cli.Context) error {
				spinner, _ := pterm.DefaultSpinner.Start("Applying changes")
				res, err := e.rest.Cluster.Apply(ctx)
				if err != nil {
					if spinner != nil {
						spinner.Fail(err.Error())
					}
					if errors.Is(err, api.ErrApplyInProgress) {
						return nil
					}
					return err
				}
				if spinner != nil {
					spinner.Success(res.Message)
				}
				return nil
			}),
		},
		{
			Name:  "backup",
			Usage: "downloads the configuration backup archive",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "archive `FILE`"},
			},
			Action: withEnv(setup, func(ctx context.Context, cCtx *cli.Context) error {
				out := cCtx.String("out")
				if out == "" {
					out = fmt.Sprintf("rampart-backup-%s.zip", time.Now().Format("20060102150405"))
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				n, err := e.rest.Cluster.Backup(ctx, f)
				if errx := f.Close(); errx != nil {
					err = errors.Join(err, errx)
				}
				if err != nil {
					os.Remove(out)
					return err
				}
				pterm.Success.Printfln("Backup of %d bytes written to %s", n, out)
				return nil
			}),
		},
		{
			Name:      "restore",
			Usage:     "uploads a backup archive",
			ArgsUsage: "<file.zip>",
			Action: withEnv(setup, func(ctx context.Context, cCtx *cli.Context) error {
				if err := requireArgs(cCtx, 1); err != nil {
					return err
				}
				path := cCtx.Args().First()
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := e.rest.Cluster.Restore(ctx, filepath.Base(path), f); err != nil {
					return err
				}
				pterm.Success.Printfln("Restored %s, apply to activate", path)
				return nil
			}),
		},
		{
			Name:  "nodes",
			Usage: "prints cluster nodes health",
			Action: withEnv(setup, func(ctx context.Context, _ *cli.Context) error {
				p, err := e.rest.Cluster.Nodes(ctx)
				if err != nil {
					return err
				}
				data := pterm.TableData{{"name", "role", "version", "healthy", "last check"}}
				for _, n := range p.Data {
					last := ""
					if n.LastCheck != nil {
						last = e.ui.FormatTime(n.LastCheck.In(time.Local))
					}
					data = append(data, []string{n.Name, n.Role, n.Version, fmt.Sprint(n.Healthy), last})
				}
				return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
			}),
		},
	}
}

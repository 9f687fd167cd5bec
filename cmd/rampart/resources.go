package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/bartossh/Rampart/api"
	"github.com/bartossh/Rampart/resource"
)

var errUnknownCollection = errors.New("unknown collection")

var managed = []string{
	api.CertificateCollection,
	api.ServiceCollection,
	api.UpstreamCollection,
	api.SensorCollection,
	api.RuleCategoryColl,
	api.RuleCollection,
	api.JailCollection,
	api.FeedCollection,
	api.RouteFilterCollection,
	api.DictionaryCollection,
	api.UserCollection,
}

type document = map[string]any

func collection(e *env, name string) (*resource.Client[document, string], error) {
	for _, m := range managed {
		if m == name {
			return resource.New[document, string](e.rest.Pipeline, e.rest.BaseURL, name), nil
		}
	}
	return nil, errors.Join(errUnknownCollection, fmt.Errorf("%q, use one of %s", name, strings.Join(managed, ", ")))
}

func resourceCommands(e *env, setup setupFunc) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "list",
			Usage:     "lists a collection",
			ArgsUsage: "<collection>",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "page", Value: 1},
				&cli.IntFlag{Name: "size", Value: 10},
				&cli.StringFlag{Name: "name", Usage: "filter by `NAME`"},
			},
			Action: withEnv(setup, func(ctx context.Context, cCtx *cli.Context) error {
				if err := requireArgs(cCtx, 1); err != nil {
					return err
				}
				c, err := collection(e, cCtx.Args().First())
				if err != nil {
					return err
				}
				meta := resource.PageMeta{Page: cCtx.Int("page"), PerPage: cCtx.Int("size")}
				var p resource.Page[document]
				if name := cCtx.String("name"); name != "" {
					p, err = c.GetByName(ctx, name, &meta)
				} else {
					p, err = c.List(ctx, &meta)
				}
				if err != nil {
					return err
				}
				return renderPage(p)
			}),
		},
		{
			Name:      "get",
			Usage:     "prints a single element",
			ArgsUsage: "<collection> <id>",
			Action: withEnv(setup, func(ctx context.Context, cCtx *cli.Context) error {
				if err := requireArgs(cCtx, 2); err != nil {
					return err
				}
				c, err := collection(e, cCtx.Args().Get(0))
				if err != nil {
					return err
				}
				doc, err := c.GetByID(ctx, cCtx.Args().Get(1))
				if err != nil {
					return err
				}
				raw, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				pterm.Println(string(raw))
				return nil
			}),
		},
		{
			Name:      "delete",
			Usage:     "removes a single element",
			ArgsUsage: "<collection> <id>",
			Action: withEnv(setup, func(ctx context.Context, cCtx *cli.Context) error {
				if err := requireArgs(cCtx, 2); err != nil {
					return err
				}
				c, err := collection(e, cCtx.Args().Get(0))
				if err != nil {
					return err
				}
				if err := c.RemoveByID(ctx, cCtx.Args().Get(1)); err != nil {
					return err
				}
				pterm.Success.Printfln("Removed %s %s, apply to activate", cCtx.Args().Get(0), cCtx.Args().Get(1))
				return nil
			}),
		},
	}
}

func renderPage(p resource.Page[document]) error {
	data := pterm.TableData{{"_id", "name", "fields"}}
	for _, doc := range p.Data {
		fields := make([]string, 0, len(doc))
		for k := range doc {
			if k != "_id" && k != "name" {
				fields = append(fields, k)
			}
		}
		sort.Strings(fields)
		data = append(data, []string{fmt.Sprint(doc["_id"]), fmt.Sprint(doc["name"]), strings.Join(fields, ",")})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	m := p.Metadata
	pterm.Info.Printfln("page %d of %d, %d elements", m.Page, m.TotalPages, m.TotalElements)
	return nil
}

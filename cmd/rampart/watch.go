package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/bartossh/Rampart/authmiddleware"
	"github.com/bartossh/Rampart/natsclient"
	"github.com/bartossh/Rampart/realtime"
	"github.com/bartossh/Rampart/telemetry"
)

const eventsCounter = "rampart_realtime_events"

var errNoNats = errors.New("nats server_address is not configured")

func watchCommand(e *env, setup setupFunc) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "follows cluster change notifications and serves metrics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "relay", Usage: "publish received events to the configured NATS subject"},
			&cli.BoolFlag{Name: "from-nats", Usage: "follow events relayed over NATS instead of the realtime channel"},
		},
		Action: func(cCtx *cli.Context) error {
			m := telemetry.New()
			if err := setup(cCtx, true, authmiddleware.WithMetrics(m)); err != nil {
				return err
			}
			if (cCtx.Bool("relay") || cCtx.Bool("from-nats")) && e.cfg.Nats.Address == "" {
				return errNoNats
			}
			ctx, cancel := signalContext(0)
			defer cancel()
			if err := m.Run(ctx, cancel, e.cfg.Telemetry); err != nil {
				return err
			}
			m.CreateUpdateCounter(eventsCounter, "Realtime events received.")

			tracker := realtime.NewApplyTracker(e.rest.Cluster, m)
			active, err := tracker.Init(ctx)
			if err != nil {
				return err
			}
			if active {
				pterm.Info.Println("Apply in progress")
			}
			banner(tracker.Pending())

			if cCtx.Bool("from-nats") {
				return followNats(ctx, e, m, tracker)
			}
			return followSocket(ctx, e, m, tracker, cCtx.Bool("relay"))
		},
	}
}

func followSocket(ctx context.Context, e *env, m *telemetry.Measurements, tracker *realtime.ApplyTracker, relay bool) error {
	rt := realtime.New(e.cfg.Realtime, e.log,
		realtime.WithHeader(func() http.Header {
			h := http.Header{}
			if token, ok := e.rest.Session.AccessToken(); ok {
				h.Set("Authorization", "Bearer "+token)
			}
			return h
		}),
		realtime.WithOnConnect(func() { pterm.Info.Println("Connected, waiting for changes") }),
	)

	go tracker.Watch(ctx, rt.Subscribe())
	events := rt.Subscribe()
	defer events.Cancel()

	if relay {
		pub, err := natsclient.PublisherConnect(e.cfg.Nats)
		if err != nil {
			return err
		}
		defer pub.Disconnect()
		go pub.Relay(ctx, rt.Subscribe(), e.log)
		pterm.Info.Printfln("Relaying events to %s", e.cfg.Nats.Address)
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	pending := tracker.Changes()
	defer pending.Cancel()
	for {
		select {
		case err := <-done:
			return err
		case p, ok := <-pending.Channel():
			if !ok {
				return nil
			}
			banner(p)
		case ev, ok := <-events.Channel():
			if !ok {
				return nil
			}
			received(e, m, ev)
		}
	}
}

func followNats(ctx context.Context, e *env, m *telemetry.Measurements, tracker *realtime.ApplyTracker) error {
	sub, err := natsclient.SubscriberConnect(e.cfg.Nats)
	if err != nil {
		return err
	}
	defer sub.Disconnect()

	pending := tracker.Changes()
	defer pending.Cancel()
	if _, err := sub.SubscribeEvents(func(ev realtime.Event) {
		received(e, m, ev)
		tracker.Handle(ev)
	}, e.log); err != nil {
		return err
	}
	pterm.Info.Printfln("Following events relayed by %s", e.cfg.Nats.Address)

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-pending.Channel():
			if !ok {
				return nil
			}
			banner(p)
		}
	}
}

func received(e *env, m *telemetry.Measurements, ev realtime.Event) {
	m.IncrementCounter(eventsCounter)
	e.log.Debug(fmt.Sprintf("realtime event %s at %s", ev.Name, ev.ReceivedAt.Format(time.RFC3339)))
}

func banner(pending bool) {
	if pending {
		pterm.Warning.Println("Changes wait to be applied, run: rampart apply")
		return
	}
	pterm.Success.Println("Cluster configuration is up to date")
}

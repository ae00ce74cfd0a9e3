package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/manleysolutions/true911-portal/portal"
	"github.com/manleysolutions/true911-portal/rbac"
)

func (a *app) cmdAction(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: t911 action <name> [options]; names: ping, reboot, update-e911, update-heartbeat, restart-container, pull-logs, switch-channel, ack-incident, close-incident")
	}
	name, rest := args[0], args[1:]

	fs := flag.NewFlagSet("action "+name, flag.ContinueOnError)
	site := fs.String("site", "", "site id")
	incident := fs.String("incident", "", "incident id")
	container := fs.String("container", "", "container name")
	channel := fs.String("channel", "", "uplink channel")
	interval := fs.Int("interval", 0, "heartbeat interval in minutes")
	notes := fs.String("notes", "", "resolution notes")
	street := fs.String("street", "", "E911 street")
	city := fs.String("city", "", "E911 city")
	state := fs.String("state", "", "E911 state")
	zip := fs.String("zip", "", "E911 zip")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	gate, run, err := a.dispatch(name, actionArgs{
		site:      *site,
		incident:  *incident,
		container: *container,
		channel:   *channel,
		interval:  *interval,
		notes:     *notes,
		address:   portal.E911Address{Street: *street, City: *city, State: *state, Zip: *zip},
	})
	if err != nil {
		return err
	}

	// Optimistic client-side gate; the server re-checks and audits.
	if !a.controller.Can(gate) {
		return fmt.Errorf("action %s requires a role permitted for %s", name, gate)
	}

	result, err := run(ctx)
	if err != nil {
		return err
	}
	if result.Success {
		fmt.Printf("OK: %s\n", result.Message)
	} else {
		fmt.Printf("Failed: %s\n", result.Message)
	}
	return nil
}

type actionArgs struct {
	site      string
	incident  string
	container string
	channel   string
	interval  int
	notes     string
	address   portal.E911Address
}

type actionFunc func(context.Context) (*portal.ActionResult, error)

// dispatch maps an action name to its permission gate and runner.
func (a *app) dispatch(name string, in actionArgs) (rbac.Action, actionFunc, error) {
	needSite := func() error {
		if in.site == "" {
			return fmt.Errorf("action %s requires --site", name)
		}
		return nil
	}
	needIncident := func() error {
		if in.incident == "" {
			return fmt.Errorf("action %s requires --incident", name)
		}
		return nil
	}

	switch name {
	case "ping":
		return rbac.ActionPing, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.Ping(ctx, in.site)
		}, needSite()
	case "reboot":
		return rbac.ActionReboot, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.Reboot(ctx, in.site)
		}, needSite()
	case "update-e911":
		if err := needSite(); err != nil {
			return "", nil, err
		}
		if in.address.Street == "" || in.address.City == "" || in.address.State == "" || in.address.Zip == "" {
			return "", nil, errors.New("update-e911 requires --street, --city, --state and --zip")
		}
		return rbac.ActionUpdateE911, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.UpdateE911(ctx, in.site, in.address)
		}, nil
	case "update-heartbeat":
		if err := needSite(); err != nil {
			return "", nil, err
		}
		if in.interval <= 0 {
			return "", nil, errors.New("update-heartbeat requires --interval > 0")
		}
		return rbac.ActionUpdateHeartbeat, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.UpdateHeartbeat(ctx, in.site, in.interval)
		}, nil
	case "restart-container":
		return rbac.ActionRestartContainer, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.RestartContainer(ctx, in.site, in.container)
		}, needSite()
	case "pull-logs":
		return rbac.ActionPullLogs, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.PullLogs(ctx, in.site, in.container)
		}, needSite()
	case "switch-channel":
		if err := needSite(); err != nil {
			return "", nil, err
		}
		if in.channel == "" {
			return "", nil, errors.New("switch-channel requires --channel")
		}
		return rbac.ActionSwitchChannel, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.SwitchChannel(ctx, in.site, in.channel)
		}, nil
	case "ack-incident":
		return rbac.ActionAckIncident, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.AckIncident(ctx, in.incident)
		}, needIncident()
	case "close-incident":
		return rbac.ActionCloseIncident, func(ctx context.Context) (*portal.ActionResult, error) {
			return a.actions.CloseIncident(ctx, in.incident, in.notes)
		}, needIncident()
	default:
		return "", nil, fmt.Errorf("unknown action: %s", name)
	}
}

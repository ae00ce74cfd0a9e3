// t911 is the command-line client for the true911 monitoring portal. It
// drives the same session core the dashboard uses: credentials persist in a
// per-user cache, expired access tokens renew transparently, and actions are
// gated by role before they are sent.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/manleysolutions/true911-portal/apiclient"
	"github.com/manleysolutions/true911-portal/credentials"
	"github.com/manleysolutions/true911-portal/internal/config"
	"github.com/manleysolutions/true911-portal/internal/logger"
	"github.com/manleysolutions/true911-portal/portal"
	"github.com/manleysolutions/true911-portal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      *credentials.FileStore
	controller *session.Controller
	actions    *portal.Actions
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return nil
	}

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	switch args[0] {
	case "login":
		return a.cmdLogin(ctx, args[1:])
	case "register":
		return a.cmdRegister(ctx, args[1:])
	case "logout":
		return a.cmdLogout(args[1:])
	case "whoami":
		return a.cmdWhoAmI(args[1:])
	case "status":
		return a.cmdStatus(args[1:])
	case "can":
		return a.cmdCan(args[1:])
	case "action":
		return a.cmdAction(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	credPath := cfg.CredentialsFile
	if credPath == "" {
		p, err := credentials.DefaultPath()
		if err != nil {
			return nil, err
		}
		credPath = p
	}

	store, err := credentials.NewFileStore(credPath, credentials.WithLogger(log))
	if err != nil {
		return nil, err
	}

	api, err := apiclient.New(cfg.APIURL, store, apiclient.WithLogger(log))
	if err != nil {
		return nil, err
	}

	controller, err := session.NewController(api, store, session.WithLogger(log))
	if err != nil {
		return nil, err
	}
	controller.OnSessionEnded(func() {
		fmt.Fprintln(os.Stderr, "Session ended. Run 't911 login' to sign in again.")
	})

	actions, err := portal.NewActions(api)
	if err != nil {
		return nil, err
	}

	controller.Bootstrap(ctx)

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		controller: controller,
		actions:    actions,
	}, nil
}

// requireUser fails fast for commands that only make sense signed in.
func (a *app) requireUser() (*session.User, error) {
	user := a.controller.CurrentUser()
	if user == nil {
		return nil, errors.New("not signed in; run 't911 login'")
	}
	return user, nil
}

func printUsage() {
	figure.NewFigure("true911", "cybermedium", true).Print()
	fmt.Print(`
Usage: t911 <command> [options]

Commands:
  login      Sign in with email and password
  register   Create an account and sign in
  logout     Clear the stored session
  whoami     Show the signed-in user
  status     Show session state and token expiry
  can        Check whether the current role may perform an action
  action     Run a device or incident action
  help       Show this help

Environment:
  T911_API_URL            Backend base URL (default http://localhost:8000/api)
  T911_CREDENTIALS_FILE   Override the credential cache location
  T911_LOG_LEVEL          trace|debug|info|warn|error (default info)
`)
}

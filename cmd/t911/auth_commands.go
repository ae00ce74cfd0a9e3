package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/manleysolutions/true911-portal/rbac"
	"github.com/manleysolutions/true911-portal/session"
	"github.com/manleysolutions/true911-portal/token"
)

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires --email and --password")
	}

	user, err := a.controller.Login(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Signed in as %s (%s)\n", user.Email, user.Role)
	fmt.Printf("Credentials saved: %s\n", a.store.Path())
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" || *name == "" {
		return errors.New("register requires --email, --password and --name")
	}

	user, err := a.controller.Register(ctx, *email, *password, *name)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Printf("Registered and signed in as %s (%s)\n", user.Email, user.Role)
	return nil
}

func (a *app) cmdLogout(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("logout takes no arguments")
	}
	a.controller.Logout()
	fmt.Println("Signed out.")
	return nil
}

func (a *app) cmdWhoAmI(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("whoami takes no arguments")
	}
	user, err := a.requireUser()
	if err != nil {
		return err
	}

	fmt.Printf("ID:     %d\n", user.ID)
	fmt.Printf("Email:  %s\n", user.Email)
	fmt.Printf("Name:   %s\n", user.Name)
	fmt.Printf("Role:   %s\n", user.Role)
	fmt.Printf("Tenant: %s\n", user.TenantID)
	return nil
}

func (a *app) cmdStatus(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("status takes no arguments")
	}

	state := a.controller.State()
	fmt.Printf("State: %s\n", state)
	fmt.Printf("Cache: %s\n", a.store.Path())

	if state != session.StateAuthenticated {
		return nil
	}

	pair := a.store.Get()
	exp, err := token.Expiry(pair.AccessToken)
	if err != nil {
		fmt.Println("Token: expiry unknown")
		return nil
	}
	fmt.Printf("Token: expires %s", exp.Format(time.RFC3339))
	if token.ExpiresWithin(pair.AccessToken, time.Minute) {
		fmt.Print(" (renewal due; it will happen transparently on the next call)")
	}
	fmt.Println()
	return nil
}

func (a *app) cmdCan(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: t911 can <ACTION>; known actions: %v", rbac.Actions())
	}

	action := rbac.Action(args[0])
	if a.controller.Can(action) {
		fmt.Printf("%s: allowed\n", action)
	} else {
		fmt.Printf("%s: denied\n", action)
	}
	return nil
}

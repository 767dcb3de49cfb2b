package main

import (
	"fmt"
	"io"

	"github.com/MJE43/hack-terminal/internal/auth"
	"github.com/MJE43/hack-terminal/internal/config"
)

func runToken(args []string, stdout, stderr io.Writer) error {
	cfg := config.Default()
	fs := newFlagSet("token", stderr)
	service := fs.String("service", cfg.KeyringService, "keyring service name")
	fallback := fs.String("fallback", "", "file used when no system keyring is available")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ts := auth.NewTokenStore(*service, *fallback)
	action := "show"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	switch action {
	case "show":
		token, created, err := ts.Ensure()
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintln(stderr, "created a new GM token")
		}
		fmt.Fprintln(stdout, token)
		return nil
	case "rotate":
		if err := ts.Delete(); err != nil {
			return err
		}
		token, _, err := ts.Ensure()
		if err != nil {
			return err
		}
		fmt.Fprintln(stderr, "GM token rotated; restart terminald to pick it up")
		fmt.Fprintln(stdout, token)
		return nil
	default:
		fmt.Fprintln(stderr, "usage: terminalctl token [show|rotate]")
		return errUsage
	}
}

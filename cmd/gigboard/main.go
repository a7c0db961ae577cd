package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/app"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/session"
)

const usage = `usage: gigboard <command> [flags]

commands:
  login                sign in with email and password
  login-google         sign in with Google (registers on first use)
  register             create a client or freelancer account
  resend-verification  send the verification email again
  whoami               show the signed-in user
  logout               end the session
  status               show the session state
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, os.Args[2:]); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd command, args []string) error {
	application, err := app.New(app.LoadConfig(), app.Options{
		Navigator: session.NavigatorFunc(func(route string) {
			fmt.Printf("-> %s\n", route)
		}),
		Present: func(authURL string) {
			fmt.Printf("Open this link to continue with Google:\n\n  %s\n\n", authURL)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			application.Logger().Error("shutdown failed", "error", err)
		}
	}()

	if err := application.Start(ctx); err != nil {
		return err
	}

	return cmd(ctx, application, args)
}

func printError(err error) {
	var ae *session.AuthError
	if !errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}

	fmt.Fprintf(os.Stderr, "%s\n", ae.Message)
	for field, reason := range ae.Fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", field, reason)
	}
	if ae.Retryable() {
		fmt.Fprintln(os.Stderr, "Please try again.")
	}
}

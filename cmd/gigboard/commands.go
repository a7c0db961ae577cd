package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/app"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/idp"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/session"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
)

type command func(ctx context.Context, a *app.Application, args []string) error

var commands = map[string]command{
	"login":               loginCmd,
	"login-google":        loginGoogleCmd,
	"register":            registerCmd,
	"resend-verification": resendCmd,
	"whoami":              whoamiCmd,
	"logout":              logoutCmd,
	"status":              statusCmd,
}

func loginCmd(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password == "" {
		p, err := readSecret("Password: ")
		if err != nil {
			return err
		}
		*password = p
	}

	err := a.Controller().LoginWithPassword(ctx, *email, *password)
	if session.IsKind(err, session.KindUnverifiedEmail) {
		fmt.Fprintln(os.Stderr, "Run `gigboard resend-verification` to get a new verification email.")
	}
	if err != nil {
		return err
	}

	printSnapshot(a.Controller().Snapshot())
	return nil
}

func loginGoogleCmd(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("login-google", flag.ContinueOnError)
	reg, role := registrationFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	outcome := make(chan error, 1)
	bridge := a.NewBridge(ctx, func(err error) {
		select {
		case outcome <- err:
		default:
		}
	})
	bridge.Mount(ctx)
	defer bridge.Unmount()

	if bridge.State() == idp.StateDisabled {
		return errors.New("google sign-in is not configured (set GOOGLE_CLIENT_ID)")
	}

	var err error
	select {
	case err = <-outcome:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !session.IsKind(err, session.KindRegistrationRequired) {
		if err == nil {
			printSnapshot(a.Controller().Snapshot())
		}
		return err
	}

	pending, _ := a.Controller().Pending(ctx)
	fmt.Printf("No account exists for %s yet.\n", pending.Hint.Email)

	if *role == "" {
		_ = a.Controller().AbandonRegistration(ctx)
		return errors.New("rerun with -role and -country to create the account")
	}

	r, err := marketsdk.ParseRole(*role)
	if err != nil {
		return err
	}
	if reg.FullName == "" {
		reg.FullName = pending.Hint.Name
	}
	if err := a.Controller().CompleteRegistration(ctx, *reg.value(), r, ""); err != nil {
		return err
	}

	printSnapshot(a.Controller().Snapshot())
	return nil
}

func registerCmd(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	reg, role := registrationFlags(fs)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := marketsdk.ParseRole(*role)
	if err != nil {
		return err
	}

	if *password == "" {
		p, err := readSecret("Password: ")
		if err != nil {
			return err
		}
		*password = p
	}

	value := reg.value()
	value.Email = *email
	value.Password = *password

	if err := a.Controller().CompleteRegistration(ctx, *value, r, ""); err != nil {
		return err
	}

	printSnapshot(a.Controller().Snapshot())
	return nil
}

func resendCmd(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("resend-verification", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.Controller().ResendVerification(ctx, *email); err != nil {
		return err
	}
	fmt.Println("Verification email sent.")
	return nil
}

func whoamiCmd(ctx context.Context, a *app.Application, _ []string) error {
	if !a.Controller().Snapshot().Authenticated() {
		return session.ErrNotAuthenticated
	}
	if err := a.Controller().RefreshProfile(ctx); err != nil {
		return err
	}

	user := a.Controller().Snapshot().User
	if user == nil {
		return session.ErrNotAuthenticated
	}
	fmt.Printf("%s <%s> (%s)\n", user.FullName, user.Email, user.Role)
	return nil
}

func logoutCmd(ctx context.Context, a *app.Application, _ []string) error {
	if err := a.Controller().Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func statusCmd(_ context.Context, a *app.Application, _ []string) error {
	printSnapshot(a.Controller().Snapshot())
	return nil
}

func printSnapshot(s session.Snapshot) {
	fmt.Printf("state: %s\n", s.State)
	if s.User != nil {
		fmt.Printf("user: %s <%s> (%s)\n", s.User.FullName, s.User.Email, s.User.Role)
	}
	if !s.ExpiresAt.IsZero() {
		fmt.Printf("expires: %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
	}
}

// registration collects the account fields shared by register and
// login-google.
type registration struct {
	FullName  string
	Country   string
	Portfolio string
	Skills    string
}

func registrationFlags(fs *flag.FlagSet) (*registration, *string) {
	r := &registration{}
	fs.StringVar(&r.FullName, "name", "", "full name")
	fs.StringVar(&r.Country, "country", "", "country")
	fs.StringVar(&r.Portfolio, "portfolio", "", "portfolio URL (freelancers)")
	fs.StringVar(&r.Skills, "skills", "", "comma separated skill ids (freelancers)")
	role := fs.String("role", "", "client or freelancer")
	return r, role
}

func (r *registration) value() *session.Registration {
	return &session.Registration{
		FullName:     r.FullName,
		Country:      r.Country,
		PortfolioURL: r.Portfolio,
		SkillIDs:     parseSkills(r.Skills),
	}
}

// parseSkills keeps unparsable entries as 0 so validation reports them.
func parseSkills(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			id = 0
		}
		ids = append(ids, id)
	}
	return ids
}

func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

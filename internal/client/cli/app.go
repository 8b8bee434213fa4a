// Package cli is the member's terminal client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/studiopass/internal/client/dashboard"
	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/internal/client/session"
	"github.com/angelmondragon/studiopass/internal/client/signup"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

// stateWait bounds how long a command waits for the session to settle.
const stateWait = 10 * time.Second

var ErrUsage = errors.New("usage")

type sessionManager interface {
	State() session.State
	Watch() (<-chan session.State, func())
	SignInWithEmail(ctx context.Context, email, password string) error
	SignUpWithEmail(ctx context.Context, email, password string, profile signup.Profile) signup.Result
	SignOut(ctx context.Context) error
	RefreshMember(ctx context.Context) error
}

type dashboardService interface {
	Home(ctx context.Context, member *gateway.Member, principal *gateway.Principal) (*dashboard.Home, error)
	Profile(ctx context.Context, member *gateway.Member) (*dashboard.Profile, error)
}

type Params struct {
	Sessions  sessionManager
	Dashboard dashboardService
	Logger    *logger.Logger
	In        io.Reader
	Out       io.Writer
	// PasswordFd is the terminal passwords are read from; zero is stdin.
	PasswordFd int
}

type App struct {
	sessions   sessionManager
	dashboard  dashboardService
	logg       *logger.Logger
	reader     *bufio.Reader
	out        io.Writer
	passwordFd int
	validate   *validator.Validate
	now        func() time.Time
}

func NewApp(p Params) (*App, error) {
	if p.Sessions == nil || p.Dashboard == nil {
		return nil, errors.New("cli requires a session manager and a dashboard")
	}
	if p.Logger == nil {
		return nil, errors.New("cli requires a logger")
	}
	in := p.In
	if in == nil {
		in = os.Stdin
	}
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	return &App{
		sessions:   p.Sessions,
		dashboard:  p.Dashboard,
		logg:       p.Logger,
		reader:     bufio.NewReader(in),
		out:        out,
		passwordFd: p.PasswordFd,
		validate:   validator.New(),
		now:        time.Now,
	}, nil
}

// Run executes one subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return ErrUsage
	}
	ctx = a.logg.WithField(ctx, "command", args[0])

	switch args[0] {
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	case "logout":
		return a.Logout(ctx)
	case "status":
		return a.Status(ctx)
	case "profile":
		return a.Profile(ctx)
	case "feed":
		return a.Feed(ctx)
	case "barcode":
		return a.Barcode(ctx, args[1:])
	case "help", "-h", "--help":
		a.usage()
		return nil
	default:
		a.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `Usage: studiopass <command>

Commands:
  register   create an account and member profile
  login      sign in with email and password
  logout     sign out
  status     show who is signed in
  profile    show member profile, membership and visits
  feed       show the current membership and recent announcements
  barcode    show the check-in barcode (-png FILE, -width COLUMNS)`)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// waitFor blocks until pred holds for the session state or stateWait passes.
func (a *App) waitFor(ctx context.Context, pred func(session.State) bool) (session.State, error) {
	ctx, cancel := context.WithTimeout(ctx, stateWait)
	defer cancel()

	states, stop := a.sessions.Watch()
	defer stop()
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return a.sessions.State(), session.ErrClosed
			}
			if pred(st) {
				return st, nil
			}
		case <-ctx.Done():
			return a.sessions.State(), ctx.Err()
		}
	}
}

func settled(st session.State) bool {
	return st.Principal != nil && st.Linkage != session.LinkagePending
}

// requireMember returns the signed-in member or a message explaining why
// there is none.
func (a *App) requireMember(ctx context.Context) (session.State, error) {
	st, err := a.waitFor(ctx, func(st session.State) bool {
		return !st.Initializing && (st.Principal == nil || st.Linkage != session.LinkagePending)
	})
	if err != nil {
		return st, err
	}
	if st.Principal == nil {
		return st, errors.New("not signed in; run `studiopass login` first")
	}
	if st.Member == nil {
		return st, errors.New(orphanMessage)
	}
	return st, nil
}

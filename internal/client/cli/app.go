package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophclass/internal/client/auth"
	"github.com/dmitrijs2005/gophclass/internal/client/models"
	"github.com/dmitrijs2005/gophclass/internal/logging"
)

// Session is the part of auth.Controller the CLI drives.
type Session interface {
	Snapshot() auth.Snapshot
	Subscribe(fn func(auth.Snapshot)) (cancel func())
	Bootstrap(ctx context.Context)
	Login(ctx context.Context, email, password string) auth.LoginResult
	VerifyTwoFactor(ctx context.Context, code string) auth.TwoFactorResult
	CancelTwoFactor()
	Register(ctx context.Context, req auth.RegisterRequest) auth.RegisterResult
	Logout(ctx context.Context)
	UpdateUserInfo(ctx context.Context, patch auth.UserPatch) error
}

// Account is the part of account.Service the CLI drives.
type Account interface {
	ChangePassword(ctx context.Context, current, next string) error
	SetupTwoFactor(ctx context.Context) (models.TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, code string) error
	DisableTwoFactor(ctx context.Context, code string) error
	Sessions(ctx context.Context) ([]models.DeviceSession, error)
	TerminateSession(ctx context.Context, sessionID string) error
	TerminateAllSessions(ctx context.Context) error
}

type App struct {
	session Session
	account Account
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer
}

func NewApp(session Session, account Account, logger logging.Logger) *App {
	return &App{
		session: session,
		account: account,
		logger:  logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
}

// Run restores the stored session and serves commands until the user exits
// or input ends.
func (a *App) Run(ctx context.Context) {
	printlnFn("Welcome to GophClass CLI (type 'help' for commands)")

	stop := a.session.Subscribe(a.onSnapshot)
	defer stop()

	a.session.Bootstrap(ctx)
	if s := a.session.Snapshot(); s.State == auth.StateAuthenticated {
		printlnFn("Signed in as", s.User.DisplayName())
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

// onSnapshot announces sign-outs that carry a reason. Those are the ones the
// user did not ask for.
func (a *App) onSnapshot(s auth.Snapshot) {
	if s.State == auth.StateAnonymous && s.Reason != "" {
		printlnFn("Signed out:", s.Reason)
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.Snapshot().State == auth.StateAuthenticated
}

func (a *App) isPending() bool {
	return a.session.Snapshot().State == auth.StateAwaitingTwoFactor
}

func (a *App) getStatus() string {
	s := a.session.Snapshot()
	switch s.State {
	case auth.StateAuthenticated:
		if s.AuthLoading {
			return fmt.Sprintf("(%s, verifying)", s.User.DisplayName())
		}
		return fmt.Sprintf("(%s)", s.User.DisplayName())
	case auth.StateAwaitingTwoFactor:
		return fmt.Sprintf("(%s, code required)", s.PendingEmail)
	default:
		return ""
	}
}

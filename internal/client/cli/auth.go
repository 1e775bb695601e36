package cli

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/gophclass/internal/client/auth"
	"github.com/dmitrijs2005/gophclass/internal/common"
)

// getSimpleText, getPassword and getSecret are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getSecret     = GetSecret
)

// Register prompts for the account details and creates the account. It does
// not sign in. Field errors from the server are printed one per line.
func (a *App) Register(ctx context.Context) error {
	var req auth.RegisterRequest
	for _, f := range []struct {
		prompt string
		dst    *string
	}{
		{"Enter first name", &req.FirstName},
		{"Enter last name", &req.LastName},
		{"Enter email", &req.Email},
	} {
		v, err := getSimpleText(a.reader, f.prompt, a.out)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	req.Password = string(password)

	res := a.session.Register(ctx, req)
	if !res.Succeeded {
		if len(res.Fields) == 0 {
			printlnFn("Registration failed:", res.Message)
			return res.Err
		}
		printlnFn("Registration failed:")
		printFields(res.Fields)
		return res.Err
	}
	printlnFn(res.Message)
	printlnFn("You can now log in.")
	return nil
}

func printFields(fields map[string][]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, msg := range fields[k] {
			printlnFn("  "+k+":", msg)
		}
	}
}

// Login prompts for credentials and signs in. When the account has a second
// factor the code is asked for right away; 'verify' retries it later.
//
// The password is securely wiped before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res := a.session.Login(ctx, email, string(password))
	switch res.Outcome {
	case auth.LoginSucceeded:
		printlnFn("Signed in as", res.User.DisplayName())
		return nil
	case auth.LoginRequiresSecondFactor:
		printlnFn("This account uses two-factor authentication.")
		return a.Verify(ctx)
	default:
		printlnFn("Login failed:", res.Message)
		return res.Err
	}
}

// Verify asks for the authenticator code of a pending sign-in.
func (a *App) Verify(ctx context.Context) error {
	if !a.isPending() {
		printlnFn("No sign-in is waiting for a code.")
		return nil
	}
	code, err := getSimpleText(a.reader, "Enter the 6-digit code from your authenticator app", a.out)
	if err != nil {
		return err
	}

	res := a.session.VerifyTwoFactor(ctx, code)
	switch res.Outcome {
	case auth.TwoFactorSucceeded:
		printlnFn("Signed in as", res.User.DisplayName())
	case auth.TwoFactorInvalidCode:
		printlnFn(res.Message, "Type 'verify' to try again or 'cancel' to stop.")
	case auth.TwoFactorChallengeExpired:
		a.session.CancelTwoFactor()
		printlnFn(res.Message, "Type 'login' to start over.")
	default:
		printlnFn("Verification failed:", res.Message)
	}
	return res.Err
}

func (a *App) Cancel(ctx context.Context) error {
	if !a.isPending() {
		printlnFn("Nothing to cancel.")
		return nil
	}
	a.session.CancelTwoFactor()
	printlnFn("Sign-in cancelled.")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if a.session.Snapshot().State == auth.StateAnonymous {
		printlnFn("You are not signed in.")
		return nil
	}
	a.session.Logout(ctx)
	printlnFn("Signed out.")
	return nil
}

// Whoami prints what the client knows about the signed-in user.
func (a *App) Whoami(ctx context.Context) error {
	s := a.session.Snapshot()
	if s.State != auth.StateAuthenticated {
		printlnFn("You are not signed in.")
		return nil
	}
	u := s.User
	printlnFn("Name:     ", u.DisplayName())
	printlnFn("Email:    ", u.Email)
	printlnFn("Theme:    ", u.ThemePreference)
	printlnFn("2FA:      ", onOff(u.TwoFactorEnabled))
	printlnFn("Session:  ", s.SessionID)
	if s.AuthLoading {
		printlnFn("(session is still being verified with the server)")
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/auth"
	"github.com/dmitrijs2005/gophclass/internal/common"
)

var themes = map[string]bool{"light": true, "dark": true}

// report prints err the way the user should see it and returns it.
func report(err error) error {
	if errors.Is(err, common.ErrUnauthorized) {
		printlnFn("You are not signed in.")
		return err
	}
	if e, ok := apierr.As(err); ok && e.Kind == apierr.KindValidation && e.Message != "" {
		printlnFn("Error:", e.Message)
		return err
	}
	d := apierr.Describe(err)
	printlnFn(d.Title+":", d.Message)
	for _, s := range d.Suggestions {
		printlnFn("  -", s)
	}
	return err
}

func (a *App) requireLogin() bool {
	if a.isLoggedIn() {
		return true
	}
	printlnFn("You are not signed in. Type 'login' first.")
	return false
}

func (a *App) Theme(ctx context.Context, theme string) error {
	theme = strings.ToLower(theme)
	if !themes[theme] {
		printlnFn("Unknown theme:", theme, "(use light or dark)")
		return nil
	}
	if err := a.session.UpdateUserInfo(ctx, auth.UserPatch{ThemePreference: &theme}); err != nil {
		return report(err)
	}
	printlnFn("Theme set to", theme)
	return nil
}

// Passwd changes the password. Both values are wiped before returning.
func (a *App) Passwd(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	current, err := getSecret(a.out, "Current password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)
	next, err := getSecret(a.out, "New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)
	again, err := getSecret(a.out, "Repeat new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if string(next) != string(again) {
		printlnFn("Passwords do not match.")
		return nil
	}
	if err := a.account.ChangePassword(ctx, string(current), string(next)); err != nil {
		return report(err)
	}
	printlnFn("Password changed.")
	return nil
}

func (a *App) Sessions(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	list, err := a.account.Sessions(ctx)
	if err != nil {
		return report(err)
	}
	if len(list) == 0 {
		printlnFn("No active sessions.")
		return nil
	}

	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDEVICE\tBROWSER\tIP\tLOCATION\tLAST ACTIVE")
	for _, s := range list {
		mark := ""
		if s.IsCurrent {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, s.ID, s.DeviceName, s.Browser, s.IPAddress, s.Location, formatTime(s.LastActive))
	}
	_ = tw.Flush()
	printlnFn(strings.TrimRight(sb.String(), "\n"))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func (a *App) Terminate(ctx context.Context, sessionID string) error {
	if !a.requireLogin() {
		return nil
	}
	if err := a.account.TerminateSession(ctx, sessionID); err != nil {
		return report(err)
	}
	printlnFn("Session", sessionID, "terminated.")
	return nil
}

func (a *App) TerminateAll(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	if err := a.account.TerminateAllSessions(ctx); err != nil {
		return report(err)
	}
	printlnFn("All other sessions terminated.")
	return nil
}

// TwoFactorSetup starts enrolment and prints the secret for the
// authenticator app. 2fa-enable finishes it.
func (a *App) TwoFactorSetup(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	setup, err := a.account.SetupTwoFactor(ctx)
	if err != nil {
		return report(err)
	}
	printlnFn("Add this secret to your authenticator app:", setup.Secret)
	if setup.ConfigURI != "" {
		printlnFn("Or use this URI:", setup.ConfigURI)
	}
	printlnFn("Then type '2fa-enable' and enter the code it shows.")
	return nil
}

func (a *App) TwoFactorEnable(ctx context.Context) error {
	return a.toggleTwoFactor(ctx, true)
}

func (a *App) TwoFactorDisable(ctx context.Context) error {
	return a.toggleTwoFactor(ctx, false)
}

func (a *App) toggleTwoFactor(ctx context.Context, enable bool) error {
	if !a.requireLogin() {
		return nil
	}
	code, err := getSimpleText(a.reader, "Enter the 6-digit code from your authenticator app", a.out)
	if err != nil {
		return err
	}

	call, done := a.account.DisableTwoFactor, "Two-factor authentication disabled."
	if enable {
		call, done = a.account.EnableTwoFactor, "Two-factor authentication enabled."
	}
	if err := call(ctx, code); err != nil {
		return report(err)
	}
	if err := a.session.UpdateUserInfo(ctx, auth.UserPatch{TwoFactorEnabled: &enable}); err != nil {
		a.logger.Warn(ctx, "updating cached user failed", "error", err)
	}
	printlnFn(done)
	return nil
}

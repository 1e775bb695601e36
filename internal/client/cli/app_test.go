package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/auth"
	"github.com/dmitrijs2005/gophclass/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	current, next string
	passwdErr     error

	setup    models.TwoFactorSetup
	setupErr error

	enabledWith, disabledWith string
	toggleErr                 error

	sessions    []models.DeviceSession
	sessionsErr error

	terminated    []string
	terminatedAll bool
	terminateErr  error
}

func (f *fakeAccount) ChangePassword(_ context.Context, current, next string) error {
	f.current, f.next = current, next
	return f.passwdErr
}
func (f *fakeAccount) SetupTwoFactor(context.Context) (models.TwoFactorSetup, error) {
	return f.setup, f.setupErr
}
func (f *fakeAccount) EnableTwoFactor(_ context.Context, code string) error {
	f.enabledWith = code
	return f.toggleErr
}
func (f *fakeAccount) DisableTwoFactor(_ context.Context, code string) error {
	f.disabledWith = code
	return f.toggleErr
}
func (f *fakeAccount) Sessions(context.Context) ([]models.DeviceSession, error) {
	return f.sessions, f.sessionsErr
}
func (f *fakeAccount) TerminateSession(_ context.Context, id string) error {
	f.terminated = append(f.terminated, id)
	return f.terminateErr
}
func (f *fakeAccount) TerminateAllSessions(context.Context) error {
	f.terminatedAll = true
	return f.terminateErr
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name string
		snap auth.Snapshot
		want string
	}{
		{"unknown", auth.Snapshot{}, ""},
		{"anonymous", auth.Snapshot{State: auth.StateAnonymous}, ""},
		{"signed in", signedIn(), "(Tess Teacher)"},
		{"verifying", auth.Snapshot{State: auth.StateAuthenticated, User: tess, AuthLoading: true}, "(Tess Teacher, verifying)"},
		{"pending", auth.Snapshot{State: auth.StateAwaitingTwoFactor, PendingEmail: "t@example.com"}, "(t@example.com, code required)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(&fakeSession{snap: tt.snap}, nil)
			assert.Equal(t, tt.want, a.getStatus())
		})
	}
}

func TestAccountCommands_RequireLogin(t *testing.T) {
	muteOutput(t)
	acc := &fakeAccount{}
	a := newTestApp(&fakeSession{snap: auth.Snapshot{State: auth.StateAnonymous}}, acc)
	ctx := context.Background()

	for _, cmd := range []func(context.Context) error{a.Passwd, a.Sessions, a.TerminateAll, a.TwoFactorSetup, a.TwoFactorEnable} {
		require.NoError(t, cmd(ctx))
	}
	require.NoError(t, a.Terminate(ctx, "s2"))
	assert.Empty(t, acc.terminated)
	assert.False(t, acc.terminatedAll)
	assert.Empty(t, acc.enabledWith)
}

func TestPasswd(t *testing.T) {
	t.Run("changes password", func(t *testing.T) {
		lines := muteOutput(t)
		prompts := stubInputs(t, "same")
		acc := &fakeAccount{}
		a := newTestApp(&fakeSession{snap: signedIn()}, acc)

		require.NoError(t, a.Passwd(context.Background()))
		assert.Equal(t, "same", acc.current)
		assert.Equal(t, "same", acc.next)
		assert.Equal(t, []string{"Current password", "New password", "Repeat new password"}, *prompts)
		assert.Contains(t, *lines, "Password changed.")
	})

	t.Run("server rejects current password", func(t *testing.T) {
		lines := muteOutput(t)
		stubInputs(t, "pw")
		acc := &fakeAccount{passwdErr: &apierr.Error{Kind: apierr.KindValidation, Status: 400, Message: "Current password is incorrect."}}
		a := newTestApp(&fakeSession{snap: signedIn()}, acc)

		assert.Error(t, a.Passwd(context.Background()))
		assert.Contains(t, *lines, "Error: Current password is incorrect.")
	})
}

func TestSessions(t *testing.T) {
	lines := muteOutput(t)
	acc := &fakeAccount{sessions: []models.DeviceSession{
		{ID: "s1", DeviceName: "Laptop", Browser: "Firefox", IPAddress: "10.0.0.1", IsCurrent: true, LastActive: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)},
		{ID: "s2", DeviceName: "Phone", Browser: "Safari"},
	}}
	a := newTestApp(&fakeSession{snap: signedIn()}, acc)

	require.NoError(t, a.Sessions(context.Background()))
	require.Len(t, *lines, 1)
	rows := strings.Split((*lines)[0], "\n")
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "DEVICE")
	assert.True(t, strings.HasPrefix(rows[1], "*"))
	assert.Contains(t, rows[1], "Laptop")
	assert.Contains(t, rows[2], "Phone")
	assert.Contains(t, rows[2], "-")
}

func TestSessions_Empty(t *testing.T) {
	lines := muteOutput(t)
	a := newTestApp(&fakeSession{snap: signedIn()}, &fakeAccount{})

	require.NoError(t, a.Sessions(context.Background()))
	assert.Equal(t, []string{"No active sessions."}, *lines)
}

func TestTerminate(t *testing.T) {
	muteOutput(t)
	acc := &fakeAccount{}
	a := newTestApp(&fakeSession{snap: signedIn()}, acc)

	require.NoError(t, a.Terminate(context.Background(), "s2"))
	require.NoError(t, a.TerminateAll(context.Background()))
	assert.Equal(t, []string{"s2"}, acc.terminated)
	assert.True(t, acc.terminatedAll)
}

func TestTerminate_Error(t *testing.T) {
	muteOutput(t)
	acc := &fakeAccount{terminateErr: errors.New("boom")}
	a := newTestApp(&fakeSession{snap: signedIn()}, acc)

	assert.Error(t, a.Terminate(context.Background(), "s2"))
}

func TestTwoFactorEnrolment(t *testing.T) {
	lines := muteOutput(t)
	stubInputs(t, "", "123456", "654321")
	acc := &fakeAccount{setup: models.TwoFactorSetup{Secret: "JBSWY3DPEHPK3PXP", ConfigURI: "otpauth://totp/x"}}
	s := &fakeSession{snap: signedIn()}
	a := newTestApp(s, acc)
	ctx := context.Background()

	require.NoError(t, a.TwoFactorSetup(ctx))
	assert.Contains(t, strings.Join(*lines, "\n"), "JBSWY3DPEHPK3PXP")

	require.NoError(t, a.TwoFactorEnable(ctx))
	assert.Equal(t, "123456", acc.enabledWith)
	require.Len(t, s.patches, 1)
	assert.True(t, *s.patches[0].TwoFactorEnabled)

	require.NoError(t, a.TwoFactorDisable(ctx))
	assert.Equal(t, "654321", acc.disabledWith)
	require.Len(t, s.patches, 2)
	assert.False(t, *s.patches[1].TwoFactorEnabled)
}

func TestTwoFactorEnable_Rejected(t *testing.T) {
	muteOutput(t)
	stubInputs(t, "", "000000")
	acc := &fakeAccount{toggleErr: &apierr.Error{Kind: apierr.KindValidation, Message: "Invalid code"}}
	s := &fakeSession{snap: signedIn()}
	a := newTestApp(s, acc)

	assert.Error(t, a.TwoFactorEnable(context.Background()))
	assert.Empty(t, s.patches)
}

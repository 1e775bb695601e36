package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/credentials"
	"github.com/dmitrijs2005/gophclass/internal/client/gateway"
	"github.com/dmitrijs2005/gophclass/internal/client/models"
	"github.com/dmitrijs2005/gophclass/internal/common"
)

var errStaleSession = errors.New("signed out while signing in")

// loginResponse is the body of both the login and the second-factor
// endpoints. The user fields sit next to the tokens.
type loginResponse struct {
	models.User
	Access            string    `json:"access"`
	Refresh           string    `json:"refresh"`
	SessionID         models.ID `json:"session_id"`
	TwoFactorRequired bool      `json:"two_factor_required"`
	UserID            models.ID `json:"user_id"`
}

type registerResponse struct {
	Message   string    `json:"message"`
	TeacherID models.ID `json:"teacher_id"`
}

// Login exchanges email and password for a session. It never returns a Go
// error; failures are LoginFailed with a message fit for the user.
func (c *Controller) Login(ctx context.Context, email, password string) LoginResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{Outcome: LoginFailed, Message: "Email and password are required."}
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	var resp loginResponse
	err := c.gw.DoJSON(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      c.ep.Login,
		Body:      map[string]string{"email": email, "password": password},
		Bootstrap: true,
	}, &resp)
	if err != nil {
		c.logger.Warn(ctx, "login failed", "email", email, "error", err)
		return LoginResult{Outcome: LoginFailed, Message: failureMessage(err, "Login failed"), Err: err}
	}

	if resp.TwoFactorRequired {
		if err := c.awaitSecondFactor(ctx, epoch, email, resp.UserID); err != nil {
			return LoginResult{Outcome: LoginFailed, Message: failureMessage(err, "Login failed"), Err: err}
		}
		return LoginResult{Outcome: LoginRequiresSecondFactor}
	}

	user, err := c.completeLogin(ctx, epoch, resp)
	if err != nil {
		return LoginResult{Outcome: LoginFailed, Message: failureMessage(err, "Login failed"), Err: err}
	}
	return LoginResult{Outcome: LoginSucceeded, User: user}
}

// awaitSecondFactor drops any stored session, so that no access token exists
// while the challenge is pending, and remembers who is signing in.
func (c *Controller) awaitSecondFactor(ctx context.Context, epoch uint64, email string, userID models.ID) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return errStaleSession
	}
	if err := c.store.Clear(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending = &challenge{email: email, userID: userID}
	c.setLocked(Snapshot{State: StateAwaitingTwoFactor, PendingEmail: email})
	c.mu.Unlock()

	c.detach()
	c.flush()
	c.logger.Info(ctx, "second factor required", "email", email)
	return nil
}

// completeLogin stores the credential record from a login or second-factor
// response and enters Authenticated.
func (c *Controller) completeLogin(ctx context.Context, epoch uint64, resp loginResponse) (models.User, error) {
	if resp.Access == "" || resp.Refresh == "" {
		return models.User{}, &apierr.Error{Kind: apierr.KindUnknown, Message: "The server did not return credentials."}
	}

	user := resp.User
	if user.ThemePreference == "" {
		user.ThemePreference = common.DefaultTheme
	}
	rec := credentials.Record{
		AccessToken:  resp.Access,
		RefreshToken: resp.Refresh,
		SessionID:    resp.SessionID.String(),
	}.WithUser(user)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return models.User{}, errStaleSession
	}
	if err := c.store.Save(ctx, rec); err != nil {
		c.mu.Unlock()
		c.logger.Error(ctx, "saving credentials failed", "error", err)
		return models.User{}, err
	}
	c.pending = nil
	c.setLocked(Snapshot{State: StateAuthenticated, User: user, SessionID: rec.SessionID})
	c.mu.Unlock()

	c.flush()
	c.logger.Info(ctx, "signed in", "user_id", user.ID.String(), "session_id", rec.SessionID)

	c.attach(ctx, epoch, rec.SessionID, rec.AccessToken)
	return user, nil
}

// VerifyTwoFactor completes a sign-in that is waiting for a code. A failure
// leaves the challenge pending.
func (c *Controller) VerifyTwoFactor(ctx context.Context, code string) TwoFactorResult {
	c.mu.Lock()
	if c.snap.State != StateAwaitingTwoFactor || c.pending == nil {
		c.mu.Unlock()
		return TwoFactorResult{Outcome: TwoFactorNotPending, Message: "No sign-in is waiting for a code.", Err: common.ErrNotPending}
	}
	email := c.pending.email
	epoch := c.epoch
	c.mu.Unlock()

	code = strings.TrimSpace(code)
	if code == "" {
		return TwoFactorResult{Outcome: TwoFactorInvalidCode, Message: "Enter the code from your authenticator app."}
	}

	var resp loginResponse
	err := c.gw.DoJSON(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      c.ep.VerifyTwoFactor,
		Body:      map[string]string{"email": email, "code": code},
		Bootstrap: true,
	}, &resp)
	if err != nil {
		outcome := c.twoFactorReason(err)
		c.logger.Warn(ctx, "second factor rejected", "email", email, "outcome", outcome.String(), "error", err)
		return TwoFactorResult{Outcome: outcome, Message: twoFactorMessage(outcome, err), Err: err}
	}

	user, err := c.completeLogin(ctx, epoch, resp)
	if err != nil {
		if errors.Is(err, errStaleSession) {
			return TwoFactorResult{Outcome: TwoFactorNotPending, Message: "The sign-in was cancelled.", Err: err}
		}
		return TwoFactorResult{Outcome: TwoFactorFailed, Message: failureMessage(err, "Two-factor verification failed"), Err: err}
	}
	return TwoFactorResult{Outcome: TwoFactorSucceeded, User: user}
}

// CancelTwoFactor abandons a pending challenge.
func (c *Controller) CancelTwoFactor() {
	c.mu.Lock()
	if c.snap.State != StateAwaitingTwoFactor {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.pending = nil
	c.setLocked(Snapshot{State: StateAnonymous})
	c.mu.Unlock()

	c.flush()
}

// Register creates an account. It does not sign in.
func (c *Controller) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	fields := map[string][]string{}
	for name, v := range map[string]string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"email":      req.Email,
		"password":   req.Password,
	} {
		if v == "" {
			fields[name] = []string{"This field is required."}
		}
	}
	if len(fields) > 0 {
		e := &apierr.Error{Kind: apierr.KindValidation, Fields: fields}
		return RegisterResult{Message: e.FieldSummary(), Fields: fields, Err: e}
	}

	var resp registerResponse
	err := c.gw.DoJSON(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      c.ep.Register,
		Body:      req,
		Bootstrap: true,
	}, &resp)
	if err != nil {
		c.logger.Warn(ctx, "registration failed", "email", req.Email, "error", err)
		res := RegisterResult{Message: failureMessage(err, "Error registering teacher"), Err: err}
		if e, ok := apierr.As(err); ok {
			res.Fields = e.Fields
		}
		return res
	}

	msg := resp.Message
	if msg == "" {
		msg = "Registration successful."
	}
	c.logger.Info(ctx, "registered", "email", req.Email, "teacher_id", resp.TeacherID.String())
	return RegisterResult{Succeeded: true, TeacherID: resp.TeacherID, Message: msg}
}

// failureMessage picks the server's message for classified errors and the
// generic description otherwise.
func failureMessage(err error, fallback string) string {
	if e, ok := apierr.As(err); ok {
		switch e.Kind {
		case apierr.KindNetwork, apierr.KindServer:
			return apierr.Describe(err).Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if errors.Is(err, errStaleSession) {
		return "The sign-in was cancelled."
	}
	return fallback
}

func twoFactorMessage(outcome TwoFactorOutcome, err error) string {
	switch outcome {
	case TwoFactorChallengeExpired:
		return "The code has expired. Request a new one and try again."
	case TwoFactorInvalidCode:
		return "The code is not valid."
	default:
		return failureMessage(err, "Two-factor verification failed")
	}
}

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/config"
	"github.com/dmitrijs2005/gophclass/internal/client/gateway"
	"github.com/dmitrijs2005/gophclass/internal/client/models"
	"github.com/dmitrijs2005/gophclass/internal/common"
)

// Logout ends the session. The server is told on a best-effort basis; the
// local sign-out happens regardless. Calling it while anonymous does nothing.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	state := c.snap.State
	c.mu.Unlock()

	if state == StateAnonymous {
		c.detach()
		return
	}

	if state == StateAuthenticated {
		lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
		err := c.gw.DoJSON(lctx, gateway.Request{Method: http.MethodPost, Path: c.ep.Logout}, nil)
		cancel()
		if err != nil {
			c.logger.Warn(ctx, "server logout failed", "error", err)
		}
	}

	c.localLogout(ctx, "")
	c.logger.Info(ctx, "signed out")
}

// Bootstrap restores a stored session once per process. The cached identity
// is shown at once while one profile request checks the credentials; what a
// check without a verdict does is governed by the bootstrap policy.
func (c *Controller) Bootstrap(ctx context.Context) {
	c.mu.Lock()
	if c.bootstrapped {
		c.mu.Unlock()
		return
	}
	c.bootstrapped = true

	rec, ok := c.store.Load(ctx)
	if !ok {
		c.setLocked(Snapshot{State: StateAnonymous})
		c.mu.Unlock()
		c.flush()
		c.logger.Info(ctx, "no stored session")
		return
	}

	cached := rec.User()
	if cached.ThemePreference == "" {
		cached.ThemePreference = common.DefaultTheme
	}
	c.setLocked(Snapshot{State: StateAuthenticated, User: cached, SessionID: rec.SessionID, AuthLoading: true})
	epoch := c.epoch
	c.mu.Unlock()
	c.flush()

	vctx, cancel := context.WithTimeout(ctx, c.bootstrapTimeout)
	profile, err := c.profiles.Profile(vctx)
	cancel()

	if err == nil {
		c.confirmSession(ctx, epoch, &profile)
		return
	}

	kind := apierr.KindOf(err)
	switch {
	case kind == apierr.KindAuthInvalid || kind == apierr.KindAuthExpired:
		c.logger.Warn(ctx, "stored session rejected", "error", err)
		c.signOutIfCurrent(ctx, epoch, apierr.Describe(err).Message)
	case kind == apierr.KindNetwork || kind == apierr.KindServer || errors.Is(err, context.DeadlineExceeded):
		if c.policy == config.FailClosed {
			c.logger.Warn(ctx, "session check inconclusive, signing out", "policy", string(c.policy), "error", err)
			c.signOutIfCurrent(ctx, epoch, apierr.Describe(err).Message)
			return
		}
		c.logger.Warn(ctx, "session check inconclusive, keeping session", "policy", string(c.policy), "error", err)
		c.confirmSession(ctx, epoch, nil)
	default:
		c.logger.Warn(ctx, "session check failed", "error", err)
		c.signOutIfCurrent(ctx, epoch, "")
	}
}

// confirmSession ends the startup check with the session kept. A non-nil
// profile is merged over the cached identity and written back to the store.
func (c *Controller) confirmSession(ctx context.Context, epoch uint64, profile *models.User) {
	c.mu.Lock()
	if c.epoch != epoch || c.snap.State != StateAuthenticated {
		c.mu.Unlock()
		return
	}

	next := c.snap
	next.AuthLoading = false
	if profile != nil {
		next.User = next.User.Merge(*profile)
	}

	rec, ok := c.store.Load(ctx)
	if ok && profile != nil {
		if err := c.store.Save(ctx, rec.WithUser(next.User)); err != nil {
			c.logger.Warn(ctx, "caching profile failed", "error", err)
		}
	}
	c.setLocked(next)
	c.mu.Unlock()
	c.flush()

	if ok {
		c.attach(ctx, epoch, rec.SessionID, rec.AccessToken)
	}
}

func (c *Controller) signOutIfCurrent(ctx context.Context, epoch uint64, reason string) {
	c.mu.Lock()
	if c.epoch != epoch {
		// the gateway already signed out
		c.mu.Unlock()
		return
	}
	c.signOutLocked(ctx, reason)
	c.mu.Unlock()

	c.detach()
	c.flush()
}

// UpdateUserInfo changes user fields locally and in the store. A theme
// change is also sent to the server; if that fails the local change stays.
func (c *Controller) UpdateUserInfo(ctx context.Context, patch UserPatch) error {
	c.mu.Lock()
	if c.snap.State != StateAuthenticated {
		c.mu.Unlock()
		return common.ErrUnauthorized
	}
	prevTheme := c.snap.User.ThemePreference
	next := c.snap
	next.User = patch.apply(next.User)

	if rec, ok := c.store.Load(ctx); ok {
		if err := c.store.Save(ctx, rec.WithUser(next.User)); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.setLocked(next)
	c.mu.Unlock()
	c.flush()

	if patch.ThemePreference != nil && *patch.ThemePreference != prevTheme {
		if err := c.profiles.SetTheme(ctx, *patch.ThemePreference); err != nil {
			c.logger.Warn(ctx, "saving theme on server failed", "theme", *patch.ThemePreference, "error", err)
		}
	}
	return nil
}

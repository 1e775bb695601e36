package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/common"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// refresh returns an access token newer than stale. Concurrent callers share
// one call to the server, and a caller whose token was already replaced gets
// the stored one without another round trip. The shared call outlives any
// single caller; each caller stops waiting when its own ctx is done.
func (g *Gateway) refresh(ctx context.Context, stale string) (string, error) {
	ch := g.refreshGroup.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
		defer cancel()
		return g.doRefresh(rctx, stale)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", apierr.Wrap(apierr.KindNetwork, ctx.Err())
	}
}

// doRefresh runs detached from the caller that started it, so store access
// and invalidation never fail on a caller's cancelled context.
func (g *Gateway) doRefresh(ctx context.Context, stale string) (string, error) {
	rec, ok := g.store.Load(ctx)
	if !ok {
		return "", g.invalidate(ctx, "no stored credentials", common.ErrNoCredentials)
	}
	if rec.AccessToken != "" && rec.AccessToken != stale {
		return rec.AccessToken, nil
	}
	if rec.RefreshToken == "" {
		return "", g.invalidate(ctx, "no refresh token available", common.ErrRefreshTokenMissing)
	}

	body, err := json.Marshal(refreshRequest{Refresh: rec.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}

	g.metrics.RecordRefresh()
	g.logger.Info(ctx, "refreshing access token")

	resp, err := g.send(ctx, http.MethodPost, g.refreshPath, body, "")
	if err != nil {
		g.metrics.RecordRefreshFailure()
		if g.keepOnOutage {
			return "", err
		}
		return "", g.invalidate(ctx, "token refresh failed", err)
	}

	if cerr := classify(resp, true); cerr != nil {
		g.metrics.RecordRefreshFailure()
		if g.keepOnOutage && apierr.Is(cerr, apierr.KindServer) {
			return "", cerr
		}
		return "", g.invalidate(ctx, "refresh token rejected", cerr)
	}

	var out refreshResponse
	if err := resp.Decode(&out); err != nil || out.Access == "" {
		g.metrics.RecordRefreshFailure()
		if err == nil {
			err = errors.New("refresh response has no access token")
		}
		return "", g.invalidate(ctx, "refresh response unusable", err)
	}

	if err := g.store.UpdateAccessToken(ctx, out.Access); err != nil {
		g.metrics.RecordRefreshFailure()
		if errors.Is(err, common.ErrNoCredentials) {
			// Logged out while the refresh was in flight.
			return "", &apierr.Error{Kind: apierr.KindAuthInvalid, Message: "signed out during refresh", Err: err}
		}
		return "", apierr.Wrap(apierr.KindUnknown, err)
	}
	return out.Access, nil
}

// invalidate clears the stored credentials and tells the session owner. It
// ignores cancellation of ctx so the clear and the handler always both run.
func (g *Gateway) invalidate(ctx context.Context, reason string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := g.store.Clear(ctx); err != nil {
		g.logger.Error(ctx, "clearing credentials failed", "error", err)
	}
	g.logger.Warn(ctx, "session invalid", "reason", reason, "error", cause)

	g.mu.RLock()
	h := g.onInvalid
	g.mu.RUnlock()
	if h != nil {
		h(ctx, reason)
	}

	return &apierr.Error{Kind: apierr.KindAuthInvalid, Message: reason, Err: cause}
}

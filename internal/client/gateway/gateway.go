// Package gateway sends authenticated JSON requests to the classroom
// back-end. A request rejected with 401 triggers one shared token refresh
// and is replayed once; any other failure is classified and returned as is.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/credentials"
	"github.com/dmitrijs2005/gophclass/internal/client/metrics"
	"github.com/dmitrijs2005/gophclass/internal/common"
	"github.com/dmitrijs2005/gophclass/internal/logging"
	"github.com/dmitrijs2005/gophclass/internal/netx"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshPath    = "/api/token/refresh/"
	defaultRefreshTimeout = 15 * time.Second
	maxBodySize           = 4 << 20
)

// Request describes one call. Bootstrap requests (login, register, refresh,
// second-factor verification) are sent without a bearer token and are never
// refreshed or replayed.
type Request struct {
	Method    string
	Path      string
	Body      any
	Bootstrap bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &apierr.Error{Kind: apierr.KindUnknown, Status: r.Status, Message: "malformed response body", Err: err}
	}
	return nil
}

// InvalidHandler is told when the stored credentials were found dead and
// cleared. It runs on the goroutine of the failing request.
type InvalidHandler func(ctx context.Context, reason string)

type Gateway struct {
	baseURL        string
	client         *http.Client
	store          credentials.Store
	logger         logging.Logger
	metrics        metrics.Recorder
	refreshPath    string
	refreshTimeout time.Duration
	proactive      bool
	keepOnOutage   bool
	skew           time.Duration
	now            func() time.Time

	refreshGroup singleflight.Group

	mu        sync.RWMutex
	onInvalid InvalidHandler
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithRefreshPath(p string) Option {
	return func(g *Gateway) { g.refreshPath = p }
}

// WithProactiveRefresh refreshes a JWT access token before sending when it
// expires within skew. Opaque tokens are left to the 401 path.
func WithProactiveRefresh(skew time.Duration) Option {
	return func(g *Gateway) {
		g.proactive = true
		g.skew = skew
	}
}

// WithKeepSessionOnRefreshOutage keeps the stored credentials when the
// refresh endpoint is unreachable or answers 5xx; the caller gets
// KindNetwork or KindServer instead of KindAuthInvalid.
func WithKeepSessionOnRefreshOutage() Option {
	return func(g *Gateway) { g.keepOnOutage = true }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(baseURL string, store credentials.Store, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 30 * time.Second},
		store:          store,
		logger:         logging.Nop(),
		metrics:        metrics.Nop(),
		refreshPath:    DefaultRefreshPath,
		refreshTimeout: defaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnSessionInvalid registers the handler called after credentials were
// cleared because the server rejected them for good.
func (g *Gateway) OnSessionInvalid(h InvalidHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onInvalid = h
}

// Do sends req. Non-2xx responses come back as *apierr.Error; a 401 is never
// returned as such, only as KindAuthInvalid once refreshing did not help.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
		body = b
	}

	if req.Bootstrap {
		resp, err := g.send(ctx, req.Method, req.Path, body, "")
		if err != nil {
			return nil, g.finish(err)
		}
		return resp, g.finish(classify(resp, true))
	}

	token := g.accessToken(ctx)
	if g.proactive && token != "" {
		if exp, ok := credentials.AccessTokenExpiry(token); ok && !g.now().Add(g.skew).Before(exp) {
			fresh, err := g.refresh(ctx, token)
			switch {
			case err == nil:
				token = fresh
			case apierr.Is(err, apierr.KindAuthInvalid):
				return nil, g.finish(err)
			default:
				g.logger.Warn(ctx, "proactive refresh failed, sending with current token", "error", err)
			}
		}
	}

	resp, err := g.send(ctx, req.Method, req.Path, body, token)
	if err != nil {
		return nil, g.finish(err)
	}
	if resp.Status != http.StatusUnauthorized {
		return resp, g.finish(classify(resp, false))
	}

	fresh, err := g.refresh(ctx, token)
	if err != nil {
		return nil, g.finish(err)
	}

	g.metrics.RecordReplay()
	resp, err = g.send(ctx, req.Method, req.Path, body, fresh)
	if err != nil {
		return nil, g.finish(err)
	}
	if resp.Status == http.StatusUnauthorized {
		return nil, g.finish(g.invalidate(ctx, "session rejected after token refresh", classify(resp, true)))
	}
	return resp, g.finish(classify(resp, false))
}

// DoJSON is Do followed by Decode into out.
func (g *Gateway) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (g *Gateway) Get(ctx context.Context, path string, out any) error {
	return g.DoJSON(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

func (g *Gateway) Post(ctx context.Context, path string, body, out any) error {
	return g.DoJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (g *Gateway) Put(ctx context.Context, path string, body, out any) error {
	return g.DoJSON(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (g *Gateway) Patch(ctx context.Context, path string, body, out any) error {
	return g.DoJSON(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (g *Gateway) Delete(ctx context.Context, path string, body, out any) error {
	return g.DoJSON(ctx, Request{Method: http.MethodDelete, Path: path, Body: body}, out)
}

func (g *Gateway) accessToken(ctx context.Context) string {
	rec, ok := g.store.Load(ctx)
	if !ok {
		return ""
	}
	return rec.AccessToken
}

func (g *Gateway) send(ctx context.Context, method, path string, body []byte, token string) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, netx.JoinURL(g.baseURL, path), rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set(common.RequestIDHeaderName, requestID)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	start := g.now()
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Warn(ctx, "request failed", "request_id", requestID, "method", method, "path", path, "error", err)
		return nil, apierr.Wrap(apierr.KindNetwork, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNetwork, fmt.Errorf("read response: %w", err))
	}

	g.logger.Debug(ctx, "request done",
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", httpResp.StatusCode,
		"elapsed", g.now().Sub(start),
	)

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// classify turns a non-2xx response into an error. A 401 on a bootstrap
// request (or on a replay) means the credentials themselves were refused.
func classify(resp *Response, authFinal bool) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	e := apierr.Parse(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
	if e.Kind == apierr.KindAuthExpired && authFinal {
		e.Kind = apierr.KindAuthInvalid
	}
	return e
}

func (g *Gateway) finish(err error) error {
	if err == nil {
		g.metrics.RecordRequest("ok")
		return nil
	}
	g.metrics.RecordRequest(apierr.KindOf(err).String())
	return err
}

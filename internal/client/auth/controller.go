// Package auth owns the session state machine: sign-in with an optional
// second factor, registration, sign-out, the startup check of restored
// credentials and the reaction to sessions ended by the server.
//
// State changes happen under one mutex. Subscribers see every committed
// Snapshot in order, after the change, never while the lock is held.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/config"
	"github.com/dmitrijs2005/gophclass/internal/client/credentials"
	"github.com/dmitrijs2005/gophclass/internal/client/gateway"
	"github.com/dmitrijs2005/gophclass/internal/client/metrics"
	"github.com/dmitrijs2005/gophclass/internal/client/models"
	"github.com/dmitrijs2005/gophclass/internal/client/monitor"
	"github.com/dmitrijs2005/gophclass/internal/logging"
)

const (
	TerminatedFallback = "Your session has been terminated by the account owner."
	logoutTimeout      = 5 * time.Second
)

// Gateway is the part of gateway.Gateway the controller needs.
type Gateway interface {
	DoJSON(ctx context.Context, req gateway.Request, out any) error
	OnSessionInvalid(h gateway.InvalidHandler)
}

// Profiles reads and updates the signed-in user on the server.
type Profiles interface {
	Profile(ctx context.Context) (models.User, error)
	SetTheme(ctx context.Context, theme string) error
}

// Monitor is the live session channel.
type Monitor interface {
	Attach(ctx context.Context, sessionID, token string) error
	Detach()
	Subscribe(fn func(monitor.Event)) (cancel func())
}

type challenge struct {
	email  string
	userID models.ID
}

type Controller struct {
	store    credentials.Store
	gw       Gateway
	profiles Profiles
	mon      Monitor
	ep       config.Endpoints
	logger   logging.Logger
	metrics  metrics.Recorder

	policy           config.BootstrapPolicy
	bootstrapTimeout time.Duration
	twoFactorReason  TwoFactorReasonMapper

	mu           sync.Mutex
	snap         Snapshot
	pending      *challenge
	bootstrapped bool
	// epoch changes on every sign-out so that calls which started before it
	// cannot bring the old session back.
	epoch uint64

	subs     map[int]func(Snapshot)
	nextSub  int
	queue    []Snapshot
	draining bool

	stopMonitorEvents func()
}

type Option func(*Controller)

func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithEndpoints(ep config.Endpoints) Option {
	return func(c *Controller) { c.ep = ep }
}

func WithBootstrapPolicy(p config.BootstrapPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

func WithBootstrapTimeout(d time.Duration) Option {
	return func(c *Controller) { c.bootstrapTimeout = d }
}

func WithTwoFactorReason(m TwoFactorReasonMapper) Option {
	return func(c *Controller) { c.twoFactorReason = m }
}

// New wires the controller to its collaborators. It registers itself as the
// gateway's session-invalid handler and subscribes to monitor events; mon may
// be nil when no live channel is wanted.
func New(store credentials.Store, gw Gateway, profiles Profiles, mon Monitor, opts ...Option) *Controller {
	c := &Controller{
		store:            store,
		gw:               gw,
		profiles:         profiles,
		mon:              mon,
		ep:               config.DefaultEndpoints(),
		logger:           logging.Nop(),
		metrics:          metrics.Nop(),
		policy:           config.FailOpen,
		bootstrapTimeout: 10 * time.Second,
		twoFactorReason:  DefaultTwoFactorReason,
		subs:             map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(c)
	}

	gw.OnSessionInvalid(c.HandleSessionInvalid)
	if mon != nil {
		c.stopMonitorEvents = mon.Subscribe(c.onMonitorEvent)
	}
	return c
}

// Close stops listening to the monitor and detaches it.
func (c *Controller) Close() {
	if c.mon == nil {
		return
	}
	if c.stopMonitorEvents != nil {
		c.stopMonitorEvents()
	}
	c.mon.Detach()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Active reports whether the session is authenticated.
func (c *Controller) Active() bool {
	return c.Snapshot().State == StateAuthenticated
}

// MonitorToken feeds the monitor on reconnect. It reports false unless the
// session is authenticated and has a server session id.
func (c *Controller) MonitorToken(ctx context.Context) (sessionID, token string, ok bool) {
	if !c.Active() {
		return "", "", false
	}
	rec, found := c.store.Load(ctx)
	if !found || rec.SessionID == "" {
		return "", "", false
	}
	return rec.SessionID, rec.AccessToken, true
}

// Subscribe registers fn for every committed snapshot.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// setLocked replaces the snapshot and queues it for subscribers. The caller
// holds c.mu and must call flush after unlocking.
func (c *Controller) setLocked(next Snapshot) {
	if next == c.snap {
		return
	}
	if next.State != c.snap.State {
		c.metrics.RecordTransition(next.State.String())
		c.logger.Info(context.Background(), "session state changed", "from", c.snap.State.String(), "to", next.State.String())
	}
	c.snap = next
	c.queue = append(c.queue, next)
}

// flush delivers queued snapshots. Only one goroutine drains at a time; a
// subscriber that triggers another transition has it delivered right after
// it returns.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		s := c.queue[0]
		c.queue = c.queue[1:]
		subs := make([]func(Snapshot), 0, len(c.subs))
		for i := 0; i < c.nextSub; i++ {
			if fn, ok := c.subs[i]; ok {
				subs = append(subs, fn)
			}
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(s)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// signOutLocked drops the session locally. The caller holds c.mu and must
// detach the monitor and flush after unlocking.
func (c *Controller) signOutLocked(ctx context.Context, reason string) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error(ctx, "clearing credentials failed", "error", err)
	}
	c.epoch++
	c.pending = nil
	c.setLocked(Snapshot{State: StateAnonymous, Reason: reason})
}

// localLogout signs out without telling the server.
func (c *Controller) localLogout(ctx context.Context, reason string) {
	c.mu.Lock()
	c.signOutLocked(ctx, reason)
	c.mu.Unlock()

	c.detach()
	c.flush()
}

func (c *Controller) detach() {
	if c.mon != nil {
		c.mon.Detach()
	}
}

// attach connects the monitor for the session of the given epoch. A sign-out
// that lands while the connection is being made detaches it again.
func (c *Controller) attach(ctx context.Context, epoch uint64, sessionID, token string) {
	if c.mon == nil || sessionID == "" || !c.current(epoch) {
		return
	}
	if err := c.mon.Attach(ctx, sessionID, token); err != nil {
		c.logger.Warn(ctx, "live session monitor unavailable", "session_id", sessionID, "error", err)
		return
	}
	if !c.current(epoch) {
		c.mon.Detach()
	}
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch && c.snap.State == StateAuthenticated
}

// HandleSessionInvalid is called by the gateway after it cleared
// credentials the server refused.
func (c *Controller) HandleSessionInvalid(ctx context.Context, reason string) {
	c.logger.Warn(ctx, "session invalidated", "reason", reason)

	c.mu.Lock()
	if c.snap.State == StateAnonymous {
		c.mu.Unlock()
		return
	}
	c.signOutLocked(ctx, apierr.Describe(apierr.New(apierr.KindAuthInvalid, reason)).Message)
	c.mu.Unlock()

	c.detach()
	c.flush()
}

func (c *Controller) onMonitorEvent(ev monitor.Event) {
	ctx := context.Background()
	switch ev.Type {
	case monitor.EventTerminated:
		c.mu.Lock()
		if c.snap.State != StateAuthenticated || (ev.SessionID != "" && ev.SessionID != c.snap.SessionID) {
			c.mu.Unlock()
			c.logger.Debug(ctx, "ignoring termination of another session", "session_id", ev.SessionID)
			return
		}
		reason := ev.Message
		if reason == "" {
			reason = TerminatedFallback
		}
		c.logger.Warn(ctx, "session terminated remotely", "session_id", ev.SessionID, "reason", reason)
		c.signOutLocked(ctx, reason)
		c.mu.Unlock()

		c.detach()
		c.flush()
	case monitor.EventError, monitor.EventClosed:
		c.logger.Warn(ctx, "live session monitor dropped", "session_id", ev.SessionID, "error", ev.Err)
	}
}

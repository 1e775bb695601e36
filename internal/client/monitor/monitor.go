// Package monitor keeps one WebSocket open per signed-in session and reports
// server-initiated termination of that session.
//
// A dropped connection is not proof of a dropped session: the monitor only
// reports it, and reconnects once when the owner says the session is still
// active. It never signs anybody out by itself.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/metrics"
	"github.com/dmitrijs2005/gophclass/internal/common"
	"github.com/dmitrijs2005/gophclass/internal/logging"
	"github.com/dmitrijs2005/gophclass/internal/netx"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultPathFormat = "/ws/sessions/%s/"
	dialTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Second
	maxMessageSize    = 64 << 10
)

type EventType int

const (
	EventOpened EventType = iota
	EventTerminated
	EventClosed
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventTerminated:
		return "terminated"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

type Event struct {
	Type      EventType
	SessionID string
	Message   string
	Err       error
}

// Dialer opens WebSocket connections; *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// TokenSource returns the current session id and access token, used when
// reconnecting after a drop. ok is false when there is no session any more.
type TokenSource func(ctx context.Context) (sessionID, token string, ok bool)

type message struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

type connection struct {
	ws        *websocket.Conn
	gen       uint64
	sessionID string
	token     string

	// authenticated is set once the authenticate message went out.
	authenticated bool
	// reconnected marks a connection that is itself the one allowed retry.
	reconnected bool
}

type Monitor struct {
	base       string
	pathFormat string
	dialer     Dialer
	logger     logging.Logger
	metrics    metrics.Recorder

	reconnect bool
	limiter   *rate.Limiter
	active    func() bool
	tokens    TokenSource

	mu      sync.Mutex
	conn    *connection
	gen     uint64
	subs    map[int]func(Event)
	nextSub int
}

type Option func(*Monitor)

func WithDialer(d Dialer) Option {
	return func(m *Monitor) { m.dialer = d }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Monitor) { m.metrics = r }
}

func WithPathFormat(f string) Option {
	return func(m *Monitor) { m.pathFormat = f }
}

// WithReconnect enables the single reconnect after an unexpected drop.
// Reconnects are spaced at least every apart.
func WithReconnect(every time.Duration) Option {
	return func(m *Monitor) {
		m.reconnect = true
		m.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
}

// WithActive sets the predicate consulted before reconnecting.
func WithActive(f func() bool) Option {
	return func(m *Monitor) { m.active = f }
}

func WithTokenSource(ts TokenSource) Option {
	return func(m *Monitor) { m.tokens = ts }
}

// New returns a Monitor dialing below base, a ws:// or wss:// URL.
func New(base string, opts ...Option) *Monitor {
	m := &Monitor{
		base:       base,
		pathFormat: DefaultPathFormat,
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger:     logging.Nop(),
		metrics:    metrics.Nop(),
		subs:       map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for all future events. Handlers run on the
// connection's reader goroutine, one event at a time, and may call Detach.
func (m *Monitor) Subscribe(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Attach replaces any current connection with one for sessionID and sends
// the access token as the first message.
func (m *Monitor) Attach(ctx context.Context, sessionID, token string) error {
	return m.attach(ctx, sessionID, token, 0, false)
}

// attach dials a new connection. A non-zero expect aborts when another
// Attach or Detach happened since generation expect.
func (m *Monitor) attach(ctx context.Context, sessionID, token string, expect uint64, reconnected bool) error {
	if sessionID == "" {
		return errors.New("monitor: empty session id")
	}

	m.mu.Lock()
	if expect != 0 && m.gen != expect {
		m.mu.Unlock()
		return common.ErrMonitorClosed
	}
	old := m.conn
	m.conn = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		closeConn(old.ws)
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	u := netx.JoinURL(m.base, fmt.Sprintf(m.pathFormat, url.PathEscape(sessionID)))
	ws, resp, err := m.dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn(ctx, "monitor dial failed", "session_id", sessionID, "error", err)
		return apierr.Wrap(apierr.KindNetwork, err)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &connection{ws: ws, gen: gen, sessionID: sessionID, token: token, reconnected: reconnected}

	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(message{Type: "authenticate", Token: token}); err != nil {
		closeConn(ws)
		return apierr.Wrap(apierr.KindNetwork, fmt.Errorf("send authenticate: %w", err))
	}
	_ = ws.SetWriteDeadline(time.Time{})
	c.authenticated = true

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		closeConn(ws)
		return common.ErrMonitorClosed
	}
	m.conn = c
	m.mu.Unlock()

	m.logger.Info(ctx, "monitor attached", "session_id", sessionID)
	m.emit(c, Event{Type: EventOpened, SessionID: sessionID})

	go m.read(c)
	return nil
}

// Detach closes the current connection, if any. Events still in flight for
// it are dropped.
func (m *Monitor) Detach() {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	if c != nil {
		closeConn(c.ws)
		m.logger.Info(context.Background(), "monitor detached", "session_id", c.sessionID)
	}
}

func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Monitor) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ""
	}
	return m.conn.sessionID
}

func (m *Monitor) current(c *connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == c.gen
}

func (m *Monitor) read(c *connection) {
	ctx := context.Background()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			m.dropped(ctx, c, err)
			return
		}
		if !m.current(c) {
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			if err == nil {
				err = errors.New("message without type")
			}
			m.logger.Warn(ctx, "malformed monitor message", "session_id", c.sessionID, "error", err)
			m.emit(c, Event{
				Type:      EventError,
				SessionID: c.sessionID,
				Err:       &apierr.Error{Kind: apierr.KindProtocol, Message: "malformed message", Err: err},
			})
			continue
		}

		switch msg.Type {
		case "session_terminated":
			m.logger.Info(ctx, "session terminated by server", "session_id", c.sessionID)
			m.emit(c, Event{Type: EventTerminated, SessionID: c.sessionID, Message: apierr.Sanitize(msg.Message)})
		default:
			m.logger.Debug(ctx, "ignoring monitor message", "type", msg.Type)
		}
	}
}

func (m *Monitor) dropped(ctx context.Context, c *connection, err error) {
	m.mu.Lock()
	if m.gen != c.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	gen := m.gen
	m.mu.Unlock()
	closeConn(c.ws)

	ev := Event{Type: EventClosed, SessionID: c.sessionID, Err: err}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		ev.Type = EventError
		ev.Err = apierr.Wrap(apierr.KindNetwork, err)
	}
	m.logger.Warn(ctx, "monitor connection lost", "session_id", c.sessionID, "error", err)
	m.emitAlways(ev)

	if !m.reconnect || c.reconnected || (m.active != nil && !m.active()) {
		return
	}

	sessionID, token := c.sessionID, c.token
	if m.tokens != nil {
		sid, tok, ok := m.tokens(ctx)
		if !ok {
			return
		}
		sessionID, token = sid, tok
	}

	wctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := m.limiter.Wait(wctx); err != nil {
		return
	}

	m.metrics.RecordReconnect()
	m.logger.Info(ctx, "monitor reconnecting", "session_id", sessionID)
	if err := m.attach(ctx, sessionID, token, gen, true); err != nil && !errors.Is(err, common.ErrMonitorClosed) {
		m.emitAlways(Event{Type: EventError, SessionID: sessionID, Err: err})
	}
}

// emit delivers ev unless c has been replaced in the meantime.
func (m *Monitor) emit(c *connection, ev Event) {
	if !m.current(c) {
		return
	}
	m.emitAlways(ev)
}

func (m *Monitor) emitAlways(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for i := 0; i < m.nextSub; i++ {
		if fn, ok := m.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	m.metrics.RecordMonitorEvent(ev.Type.String())
	for _, fn := range subs {
		fn(ev)
	}
}

func closeConn(ws *websocket.Conn) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = ws.Close()
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/account"
	"github.com/dmitrijs2005/gophclass/internal/client/config"
	"github.com/dmitrijs2005/gophclass/internal/client/credentials"
	"github.com/dmitrijs2005/gophclass/internal/client/gateway"
	"github.com/dmitrijs2005/gophclass/internal/client/monitor"
	"github.com/dmitrijs2005/gophclass/internal/common"
	"github.com/go-chi/chi/v5"
)

// backend is a fake classroom server. Access tokens are accepted only when
// equal to access; refresh hands out newAccess.
type backend struct {
	mu sync.Mutex

	access        string
	newAccess     string
	twoFactor     bool
	refreshStatus int
	profileStatus int
	profileDelay  time.Duration
	themeStatus   int
	logoutStatus  int
	lastTheme     string

	loginHits   atomic.Int32
	verifyHits  atomic.Int32
	refreshHits atomic.Int32
	profileHits atomic.Int32
	logoutHits  atomic.Int32
	themeHits   atomic.Int32
}

func newBackend() *backend {
	return &backend{access: "A1", newAccess: "A2"}
}

func (b *backend) set(fn func(*backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *backend) loginBody() map[string]any {
	return map[string]any{
		"access":             b.access,
		"refresh":            "R1",
		"session_id":         "s1",
		"id":                 7,
		"first_name":         "Tess",
		"last_name":          "Teacher",
		"email":              "t@example.com",
		"theme_preference":   "",
		"two_factor_enabled": b.twoFactor,
		"is_first_login":     false,
	}
}

func (b *backend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.Header.Get(common.AuthorizationHeaderName) == common.BearerPrefix+b.access
}

func (b *backend) router() http.Handler {
	ep := config.DefaultEndpoints()
	r := chi.NewRouter()

	r.Post(ep.Login, func(w http.ResponseWriter, r *http.Request) {
		b.loginHits.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "t@example.com" || body["password"] != "secret" {
			reply(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.twoFactor {
			reply(w, http.StatusOK, map[string]any{"two_factor_required": true, "user_id": 7})
			return
		}
		reply(w, http.StatusOK, b.loginBody())
	})

	r.Post(ep.VerifyTwoFactor, func(w http.ResponseWriter, r *http.Request) {
		b.verifyHits.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["code"] {
		case "123456":
			b.mu.Lock()
			defer b.mu.Unlock()
			reply(w, http.StatusOK, b.loginBody())
		case "999999":
			reply(w, http.StatusBadRequest, map[string]string{"error": "Code expired", "code": "code_expired"})
		default:
			reply(w, http.StatusBadRequest, map[string]string{"error": "Invalid code"})
		}
	})

	r.Post(ep.Register, func(w http.ResponseWriter, r *http.Request) {
		var body RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body.Email {
		case "taken@example.com":
			reply(w, http.StatusBadRequest, map[string][]string{
				"email":    {"Teacher with this email already exists."},
				"password": {"This password is too short.", "This password is too common."},
			})
		case "dup@example.com":
			reply(w, http.StatusBadRequest, map[string]string{"error": "Email already registered!"})
		default:
			reply(w, http.StatusCreated, map[string]any{"message": "Teacher registered successfully!", "teacher_id": 12})
		}
	})

	r.Post(ep.Refresh, func(w http.ResponseWriter, r *http.Request) {
		b.refreshHits.Add(1)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.refreshStatus != 0 {
			reply(w, b.refreshStatus, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		b.access = b.newAccess
		reply(w, http.StatusOK, map[string]string{"access": b.access})
	})

	r.Post(ep.Logout, func(w http.ResponseWriter, r *http.Request) {
		b.logoutHits.Add(1)
		b.mu.Lock()
		status := b.logoutStatus
		b.mu.Unlock()
		if status != 0 {
			reply(w, status, map[string]string{"error": "nope"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get(ep.Profile, func(w http.ResponseWriter, r *http.Request) {
		b.profileHits.Add(1)
		b.mu.Lock()
		status, delay := b.profileStatus, b.profileDelay
		b.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			reply(w, status, map[string]string{"error": "profile unavailable"})
			return
		}
		if !b.authorized(r) {
			reply(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		reply(w, http.StatusOK, map[string]any{
			"id": 7, "first_name": "Tess", "last_name": "Teacher", "email": "t@example.com",
			"theme_preference": "dark", "two_factor_enabled": true,
		})
	})

	r.Post(ep.Theme, func(w http.ResponseWriter, r *http.Request) {
		b.themeHits.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.lastTheme = body["theme"]
		if b.themeStatus != 0 {
			reply(w, b.themeStatus, map[string]string{"error": "theme failed"})
			return
		}
		reply(w, http.StatusOK, map[string]string{"theme": body["theme"]})
	})

	return r
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeMonitor struct {
	mu        sync.Mutex
	attached  bool
	sessionID string
	token     string
	attaches  int
	detaches  int
	subs      []func(monitor.Event)
}

func (m *fakeMonitor) Attach(ctx context.Context, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = true
	m.sessionID = sessionID
	m.token = token
	m.attaches++
	return nil
}

func (m *fakeMonitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = false
	m.sessionID = ""
	m.detaches++
}

func (m *fakeMonitor) Subscribe(fn func(monitor.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
	return func() {}
}

func (m *fakeMonitor) emit(ev monitor.Event) {
	m.mu.Lock()
	subs := append(([]func(monitor.Event))(nil), m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (m *fakeMonitor) state() (attached bool, sessionID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached, m.sessionID, m.token
}

type env struct {
	backend *backend
	server  *httptest.Server
	store   credentials.Store
	gw      *gateway.Gateway
	account *account.Service
	mon     *fakeMonitor
	ctrl    *Controller
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	b := newBackend()
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)
	return newEnvWith(t, b, srv, credentials.NewMemoryStore(), opts...)
}

// newEnvWith builds a fresh controller over an existing server and store,
// the way a restarted process would.
func newEnvWith(t *testing.T, b *backend, srv *httptest.Server, store credentials.Store, opts ...Option) *env {
	t.Helper()
	gw := gateway.New(srv.URL, store)
	acc := account.NewService(gw, config.DefaultEndpoints())
	mon := &fakeMonitor{}
	ctrl := New(store, gw, acc, mon, opts...)
	return &env{backend: b, server: srv, store: store, gw: gw, account: acc, mon: mon, ctrl: ctrl}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	res := e.ctrl.Login(context.Background(), "t@example.com", "secret")
	if res.Outcome != LoginSucceeded {
		t.Fatalf("login: %+v", res)
	}
}

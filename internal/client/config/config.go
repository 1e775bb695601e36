package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/logging"
	"github.com/dmitrijs2005/gophclass/internal/netx"
)

// BootstrapPolicy decides what a startup verification that could not reach
// a verdict (network, server or deadline failure) does to a restored session.
type BootstrapPolicy string

const (
	// FailOpen keeps the restored session.
	FailOpen BootstrapPolicy = "fail_open"
	// FailClosed signs out.
	FailClosed BootstrapPolicy = "fail_closed"
)

func (p BootstrapPolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

// Endpoints are the back-end paths, relative to ServerURL. WebSocketSession
// is a format with one %s for the session id.
type Endpoints struct {
	Login            string `json:"login"`
	VerifyTwoFactor  string `json:"verify_two_factor"`
	Register         string `json:"register"`
	Refresh          string `json:"refresh"`
	Logout           string `json:"logout"`
	Profile          string `json:"profile"`
	Theme            string `json:"theme"`
	ChangePassword   string `json:"change_password"`
	TwoFactorSetup   string `json:"two_factor_setup"`
	TwoFactorVerify  string `json:"two_factor_verify"`
	TwoFactorDisable string `json:"two_factor_disable"`
	Sessions         string `json:"sessions"`
	TerminateSession string `json:"terminate_session"`
	TerminateAll     string `json:"terminate_all"`
	WebSocketSession string `json:"websocket_session"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:            "/api/teachers/login/",
		VerifyTwoFactor:  "/api/teachers/verify-login-2fa/",
		Register:         "/api/teachers/register/",
		Refresh:          "/api/token/refresh/",
		Logout:           "/api/teachers/logout/",
		Profile:          "/api/teachers/profile/",
		Theme:            "/api/teachers/profile/theme/",
		ChangePassword:   "/api/teachers/profile/password/change/",
		TwoFactorSetup:   "/api/teachers/profile/2fa/setup/",
		TwoFactorVerify:  "/api/teachers/profile/2fa/verify/",
		TwoFactorDisable: "/api/teachers/profile/2fa/disable/",
		Sessions:         "/api/teachers/profile/sessions/",
		TerminateSession: "/api/teachers/profile/sessions/terminate/",
		TerminateAll:     "/api/teachers/profile/sessions/terminate-all/",
		WebSocketSession: "/ws/sessions/%s/",
	}
}

// merge overlays the non-empty paths of o.
func (e Endpoints) merge(o Endpoints) Endpoints {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&e.Login, o.Login)
	pick(&e.VerifyTwoFactor, o.VerifyTwoFactor)
	pick(&e.Register, o.Register)
	pick(&e.Refresh, o.Refresh)
	pick(&e.Logout, o.Logout)
	pick(&e.Profile, o.Profile)
	pick(&e.Theme, o.Theme)
	pick(&e.ChangePassword, o.ChangePassword)
	pick(&e.TwoFactorSetup, o.TwoFactorSetup)
	pick(&e.TwoFactorVerify, o.TwoFactorVerify)
	pick(&e.TwoFactorDisable, o.TwoFactorDisable)
	pick(&e.Sessions, o.Sessions)
	pick(&e.TerminateSession, o.TerminateSession)
	pick(&e.TerminateAll, o.TerminateAll)
	pick(&e.WebSocketSession, o.WebSocketSession)
	return e
}

// Config holds runtime settings for the client.
type Config struct {
	ServerURL            string
	WSURL                string
	DatabasePath         string
	StorageSecret        string
	BootstrapTimeout     time.Duration
	RequestTimeout       time.Duration
	BootstrapPolicy      BootstrapPolicy
	MonitorReconnect     bool
	ProactiveRefresh     bool
	ProactiveRefreshSkew time.Duration

	// KeepSessionOnRefreshOutage keeps credentials when the refresh
	// endpoint is unreachable or answers 5xx. Off by default.
	KeepSessionOnRefreshOutage bool

	LogFormat   string
	MetricsAddr string
	Endpoints   Endpoints
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.WSURL = ""
	c.DatabasePath = "gophclass.db"
	c.StorageSecret = ""
	c.BootstrapTimeout = 10 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.BootstrapPolicy = FailOpen
	c.MonitorReconnect = true
	c.ProactiveRefresh = true
	c.ProactiveRefreshSkew = 30 * time.Second
	c.KeepSessionOnRefreshOutage = false
	c.LogFormat = logging.FormatConsole
	c.MetricsAddr = ""
	c.Endpoints = DefaultEndpoints()
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// the flags in args (os.Args[1:] in production). Later sources win.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid server_url %q", c.ServerURL))
	}
	if !c.BootstrapPolicy.Valid() {
		errs = append(errs, fmt.Errorf("invalid bootstrap_policy %q", c.BootstrapPolicy))
	}
	if c.BootstrapTimeout <= 0 {
		errs = append(errs, errors.New("bootstrap_timeout must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.ProactiveRefreshSkew < 0 {
		errs = append(errs, errors.New("proactive_refresh_skew must not be negative"))
	}
	if _, err := c.WebSocketBase(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WebSocketBase returns WSURL, or the ws(s) form of ServerURL when unset.
func (c *Config) WebSocketBase() (string, error) {
	if c.WSURL != "" {
		return c.WSURL, nil
	}
	return netx.WebSocketBase(c.ServerURL)
}

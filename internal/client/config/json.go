package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophclass/internal/flagx"
	"github.com/dmitrijs2005/gophclass/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero values mean "not set" so a partial file only overrides what it names.
type JsonConfig struct {
	ServerURL            string          `json:"server_url"`
	WSURL                string          `json:"ws_url"`
	DatabasePath         *string         `json:"database_path"`
	StorageSecret        string          `json:"storage_secret"`
	BootstrapTimeout     *timex.Duration `json:"bootstrap_timeout"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	BootstrapPolicy      string          `json:"bootstrap_policy"`
	MonitorReconnect     *bool           `json:"monitor_reconnect"`
	ProactiveRefresh     *bool           `json:"proactive_refresh"`
	ProactiveRefreshSkew *timex.Duration `json:"proactive_refresh_skew"`
	KeepSessionOnOutage  *bool           `json:"keep_session_on_refresh_outage"`
	LogFormat            string          `json:"log_format"`
	MetricsAddr          string          `json:"metrics_addr"`
	Endpoints            Endpoints       `json:"endpoints"`
}

// parseJson overlays cfg with the file given by -c or -config, if any.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.WSURL, jc.WSURL)
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	setString(&cfg.StorageSecret, jc.StorageSecret)
	if jc.BootstrapTimeout != nil {
		cfg.BootstrapTimeout = jc.BootstrapTimeout.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.BootstrapPolicy != "" {
		cfg.BootstrapPolicy = BootstrapPolicy(jc.BootstrapPolicy)
	}
	if jc.MonitorReconnect != nil {
		cfg.MonitorReconnect = *jc.MonitorReconnect
	}
	if jc.ProactiveRefresh != nil {
		cfg.ProactiveRefresh = *jc.ProactiveRefresh
	}
	if jc.ProactiveRefreshSkew != nil {
		cfg.ProactiveRefreshSkew = jc.ProactiveRefreshSkew.Duration
	}
	if jc.KeepSessionOnOutage != nil {
		cfg.KeepSessionOnRefreshOutage = *jc.KeepSessionOnOutage
	}
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)
	cfg.Endpoints = cfg.Endpoints.merge(jc.Endpoints)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

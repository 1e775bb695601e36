// Package config loads runtime configuration for the classroom session
// client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the REST back-end
//	-w string   base URL of the WebSocket endpoint (derived from -a when empty)
//	-d string   path of the local SQLite database; empty keeps credentials in memory
//	-s string   secret used to seal stored tokens
//	-b int      bootstrap verification timeout (seconds)
//	-t int      per-request timeout (seconds)
//	-p string   bootstrap policy: fail_open or fail_closed
//	-r          reconnect the live session monitor once after a drop
//	-l string   log format: json, text or console
//	-m string   address for the /metrics endpoint; empty disables it
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "10s" or
// integer nanoseconds. Absent keys keep their earlier value:
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "ws_url": "",
//	  "database_path": "gophclass.db",
//	  "storage_secret": "",
//	  "bootstrap_timeout": "10s",
//	  "request_timeout": "30s",
//	  "bootstrap_policy": "fail_open",
//	  "monitor_reconnect": true,
//	  "proactive_refresh": true,
//	  "proactive_refresh_skew": "30s",
//	  "keep_session_on_refresh_outage": false,
//	  "log_format": "console",
//	  "metrics_addr": "",
//	  "endpoints": {"login": "/api/teachers/login/"}
//	}
package config

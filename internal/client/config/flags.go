package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/flagx"
)

var ownFlags = []string{"-a", "-w", "-d", "-s", "-b", "-t", "-p", "-l", "-m"}

// parseFlags populates cfg from the flags it owns; everything else in args
// is ignored (see flagx.FilterArgs).
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, ownFlags, "-r")

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the REST back-end")
	fs.StringVar(&cfg.WSURL, "w", cfg.WSURL, "base URL of the WebSocket endpoint")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.StorageSecret, "s", cfg.StorageSecret, "secret used to seal stored tokens")
	bootstrapTimeout := fs.Int("b", int(cfg.BootstrapTimeout.Seconds()), "bootstrap verification timeout (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	policy := fs.String("p", string(cfg.BootstrapPolicy), "bootstrap policy: fail_open or fail_closed")
	fs.BoolVar(&cfg.MonitorReconnect, "r", cfg.MonitorReconnect, "reconnect the session monitor once")
	fs.StringVar(&cfg.LogFormat, "l", cfg.LogFormat, "log format: json, text or console")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	// Durations are only touched when given, so a sub-second JSON value
	// survives the seconds-based flag default.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "b":
			cfg.BootstrapTimeout = time.Duration(*bootstrapTimeout) * time.Second
		case "t":
			cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
		}
	})
	cfg.BootstrapPolicy = BootstrapPolicy(*policy)
	return nil
}

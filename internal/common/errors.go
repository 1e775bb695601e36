// Package common defines shared constants and sentinel errors used across
// the gophclass client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Credential store errors.
	ErrNoCredentials = errors.New("no stored credentials")

	// Session errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotPending   = errors.New("no second-factor challenge pending")

	// Token lifecycle errors.
	ErrRefreshTokenMissing = errors.New("no refresh token available")

	// Live monitor errors.
	ErrMonitorClosed = errors.New("monitor connection closed")
)

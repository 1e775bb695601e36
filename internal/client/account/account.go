// Package account wraps the profile and security endpoints a signed-in
// teacher uses: profile, theme, password, second factor and device sessions.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
	"github.com/dmitrijs2005/gophclass/internal/client/config"
	"github.com/dmitrijs2005/gophclass/internal/client/models"
)

// API is the part of the gateway this package needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

type Service struct {
	api API
	ep  config.Endpoints
}

func NewService(api API, ep config.Endpoints) *Service {
	return &Service{api: api, ep: ep}
}

// Profile fetches the signed-in user. It doubles as the session check run
// at startup.
func (s *Service) Profile(ctx context.Context) (models.User, error) {
	var u models.User
	if err := s.api.Get(ctx, s.ep.Profile, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Service) SetTheme(ctx context.Context, theme string) error {
	if strings.TrimSpace(theme) == "" {
		return fieldError("theme", "This field may not be blank.")
	}
	return s.api.Post(ctx, s.ep.Theme, map[string]string{"theme": theme}, nil)
}

func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	fields := map[string][]string{}
	if current == "" {
		fields["current_password"] = []string{"This field may not be blank."}
	}
	if next == "" {
		fields["new_password"] = []string{"This field may not be blank."}
	}
	if len(fields) > 0 {
		e := &apierr.Error{Kind: apierr.KindValidation, Fields: fields}
		e.Message = e.FieldSummary()
		return e
	}
	return s.api.Post(ctx, s.ep.ChangePassword, map[string]string{
		"current_password": current,
		"new_password":     next,
	}, nil)
}

// SetupTwoFactor starts enrolment and returns the secret to add to an
// authenticator app. Enrolment completes with EnableTwoFactor.
func (s *Service) SetupTwoFactor(ctx context.Context) (models.TwoFactorSetup, error) {
	var out models.TwoFactorSetup
	if err := s.api.Post(ctx, s.ep.TwoFactorSetup, nil, &out); err != nil {
		return models.TwoFactorSetup{}, err
	}
	return out, nil
}

func (s *Service) EnableTwoFactor(ctx context.Context, code string) error {
	code, err := checkCode(code)
	if err != nil {
		return err
	}
	return s.api.Post(ctx, s.ep.TwoFactorVerify, map[string]string{"token": code}, nil)
}

func (s *Service) DisableTwoFactor(ctx context.Context, code string) error {
	code, err := checkCode(code)
	if err != nil {
		return err
	}
	return s.api.Post(ctx, s.ep.TwoFactorDisable, map[string]string{"token": code}, nil)
}

// Sessions lists the login sessions of the account. The server may answer
// with a bare list or with {"sessions": [...]}.
func (s *Service) Sessions(ctx context.Context) ([]models.DeviceSession, error) {
	var raw json.RawMessage
	if err := s.api.Get(ctx, s.ep.Sessions, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var list []models.DeviceSession
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Sessions []models.DeviceSession `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return wrapped.Sessions, nil
}

func (s *Service) TerminateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fieldError("session_id", "This field may not be blank.")
	}
	return s.api.Post(ctx, s.ep.TerminateSession, map[string]string{"session_id": sessionID}, nil)
}

// TerminateAllSessions ends every session except the current one.
func (s *Service) TerminateAllSessions(ctx context.Context) error {
	return s.api.Post(ctx, s.ep.TerminateAll, nil, nil)
}

func checkCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		return "", fieldError("token", "Enter the 6-digit code from your authenticator app.")
	}
	return code, nil
}

func fieldError(field, msg string) error {
	return &apierr.Error{
		Kind:    apierr.KindValidation,
		Message: field + ": " + msg,
		Fields:  map[string][]string{field: {msg}},
	}
}

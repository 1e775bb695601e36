// Package credentials is the single owner of the durable credential record:
// tokens, the server session id and the cached identity of the signed-in
// user. No other package writes these values to storage.
package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophclass/internal/client/models"
	"github.com/golang-jwt/jwt/v5"
)

var ErrIncompleteRecord = errors.New("credential record needs an access and a refresh token")

// Record is the part of a session that survives a restart.
type Record struct {
	AccessToken     string
	RefreshToken    string
	SessionID       string
	UserID          string
	UserName        string
	UserEmail       string
	ThemePreference string
}

// HasCredentials reports whether the record holds an access token.
func (r Record) HasCredentials() bool {
	return r.AccessToken != ""
}

// User returns the cached identity.
func (r Record) User() models.User {
	return models.User{
		ID:              models.ID(r.UserID),
		FirstName:       r.UserName,
		Email:           r.UserEmail,
		ThemePreference: r.ThemePreference,
	}
}

// WithUser copies the cached subset of u into the record.
func (r Record) WithUser(u models.User) Record {
	r.UserID = u.ID.String()
	r.UserName = u.FirstName
	r.UserEmail = u.Email
	r.ThemePreference = u.ThemePreference
	return r
}

func (r Record) validate() error {
	if r.AccessToken == "" || r.RefreshToken == "" {
		return ErrIncompleteRecord
	}
	return nil
}

// Store persists a Record.
//
// Load never fails: a missing or unreadable record is reported as
// (Record{}, false). Save and Clear are atomic with respect to Load.
// UpdateAccessToken changes the access token only and returns
// common.ErrNoCredentials when nothing is stored.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (Record, bool)
	Clear(ctx context.Context) error
	UpdateAccessToken(ctx context.Context, token string) error
}

// AccessTokenExpiry reads the exp claim of a JWT access token without
// verifying its signature. ok is false for opaque tokens and tokens without
// an expiry.
func AccessTokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

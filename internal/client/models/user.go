// Package models holds the data shapes shared by the client packages.
package models

import "time"

// User is the signed-in teacher as far as the client knows it. After a
// restart only the cached subset (ID, FirstName, Email, ThemePreference) is
// filled until the profile is fetched again.
type User struct {
	ID               ID     `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	ThemePreference  string `json:"theme_preference"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	IsFirstLogin     bool   `json:"is_first_login"`
}

// Merge overlays the non-zero fields of other onto u. Booleans are copied as
// they come, since the profile endpoint always reports them.
func (u User) Merge(other User) User {
	if other.ID != "" {
		u.ID = other.ID
	}
	if other.FirstName != "" {
		u.FirstName = other.FirstName
	}
	if other.LastName != "" {
		u.LastName = other.LastName
	}
	if other.Email != "" {
		u.Email = other.Email
	}
	if other.ThemePreference != "" {
		u.ThemePreference = other.ThemePreference
	}
	u.TwoFactorEnabled = other.TwoFactorEnabled
	u.IsFirstLogin = other.IsFirstLogin
	return u
}

// DisplayName is what the CLI prompt shows for the user.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// DeviceSession is one login session of the account as listed by the server.
type DeviceSession struct {
	ID         ID        `json:"id"`
	DeviceName string    `json:"device_name"`
	Browser    string    `json:"browser"`
	IPAddress  string    `json:"ip_address"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	IsCurrent  bool      `json:"is_current"`
}

// TwoFactorSetup is returned when enabling a second factor is started.
type TwoFactorSetup struct {
	Secret    string `json:"secret"`
	QRCode    string `json:"qr_code"`
	ConfigURI string `json:"config_uri"`
}

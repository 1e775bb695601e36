package common

// Durable storage keys. They are written only by the credential store; the
// rest of the client may read them for display purposes.
const (
	KeyAccessToken     = "access_token"
	KeyRefreshToken    = "refresh_token"
	KeySessionID       = "session_id"
	KeyUserID          = "user_id"
	KeyUserName        = "user_name"
	KeyUserEmail       = "user_email"
	KeyThemePreference = "theme_preference"

	// KeySealSalt holds the argon2 salt for at-rest sealing. It is not part of
	// a credential record and survives a logout.
	KeySealSalt = "seal_salt"
)

// CredentialKeys lists every key that makes up a credential record.
var CredentialKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeySessionID,
	KeyUserID,
	KeyUserName,
	KeyUserEmail,
	KeyThemePreference,
}

// Header names used on outbound HTTP requests.
const (
	AuthorizationHeaderName = "Authorization"
	RequestIDHeaderName     = "X-Request-ID"
	BearerPrefix            = "Bearer "
)

// DefaultTheme is applied when neither the server nor the cache knows one.
const DefaultTheme = "light"

package auth

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophclass/internal/client/apierr"
)

// TwoFactorReasonMapper decides why a code verification failed.
type TwoFactorReasonMapper func(err error) TwoFactorOutcome

// DefaultTwoFactorReason treats 410 Gone and any code or message mentioning
// expiry as an expired challenge, other client errors as a wrong code, and
// everything else as a failure to verify at all.
func DefaultTwoFactorReason(err error) TwoFactorOutcome {
	e, ok := apierr.As(err)
	if !ok {
		return TwoFactorFailed
	}
	if e.Status == http.StatusGone ||
		strings.Contains(strings.ToLower(e.Code), "expired") ||
		strings.Contains(strings.ToLower(e.Message), "expired") {
		return TwoFactorChallengeExpired
	}
	switch e.Kind {
	case apierr.KindValidation, apierr.KindAuthInvalid, apierr.KindAuthExpired:
		return TwoFactorInvalidCode
	default:
		return TwoFactorFailed
	}
}

package auth

import (
	"fmt"

	"github.com/dmitrijs2005/gophclass/internal/client/models"
)

type State int

const (
	// StateUnknown is the state before Bootstrap has run.
	StateUnknown State = iota
	StateAnonymous
	// StateAwaitingTwoFactor means the password was accepted and a code is
	// due. No access token exists in this state.
	StateAwaitingTwoFactor
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAwaitingTwoFactor:
		return "awaiting_two_factor"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is the observable session state. Reason explains the last
// forced sign-out and is empty otherwise.
type Snapshot struct {
	State        State
	User         models.User
	AuthLoading  bool
	Reason       string
	SessionID    string
	PendingEmail string
}

type LoginOutcome int

const (
	LoginSucceeded LoginOutcome = iota
	LoginRequiresSecondFactor
	LoginFailed
)

type LoginResult struct {
	Outcome LoginOutcome
	User    models.User
	Message string
	Err     error
}

type TwoFactorOutcome int

const (
	TwoFactorSucceeded TwoFactorOutcome = iota
	TwoFactorInvalidCode
	TwoFactorChallengeExpired
	TwoFactorNotPending
	TwoFactorFailed
)

func (o TwoFactorOutcome) String() string {
	switch o {
	case TwoFactorSucceeded:
		return "succeeded"
	case TwoFactorInvalidCode:
		return "invalid_code"
	case TwoFactorChallengeExpired:
		return "challenge_expired"
	case TwoFactorNotPending:
		return "not_pending"
	case TwoFactorFailed:
		return "failed"
	default:
		return fmt.Sprintf("two_factor(%d)", int(o))
	}
}

type TwoFactorResult struct {
	Outcome TwoFactorOutcome
	User    models.User
	Message string
	Err     error
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// RegisterResult reports a registration attempt. On failure Fields maps
// input names to messages when the server attributed the error.
type RegisterResult struct {
	Succeeded bool
	TeacherID models.ID
	Message   string
	Fields    map[string][]string
	Err       error
}

// UserPatch lists the user fields to change; nil fields stay as they are.
type UserPatch struct {
	FirstName        *string
	LastName         *string
	Email            *string
	ThemePreference  *string
	TwoFactorEnabled *bool
}

func (p UserPatch) apply(u models.User) models.User {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.ThemePreference != nil {
		u.ThemePreference = *p.ThemePreference
	}
	if p.TwoFactorEnabled != nil {
		u.TwoFactorEnabled = *p.TwoFactorEnabled
	}
	return u
}

package hoyolab

import (
	"errors"
	"fmt"
)

// Retcodes returned by the HoYoLAB API that the scheduler must distinguish.
const (
	retcodeAlreadyClaimed  = -5003
	retcodeNoCharacter     = -10002
	retcodeServerBusy      = 50000
	retcodeCommunitySigned = 2001
)

var (
	// ErrAlreadyClaimed means today's reward was redeemed earlier. Benign.
	ErrAlreadyClaimed = errors.New("daily reward already claimed")

	// ErrInvalidCookies means the stored credential is expired or wrong.
	ErrInvalidCookies = errors.New("cookies are invalid or expired")
)

// APIError is a non-zero retcode from the HoYoLAB API that is not covered
// by a more specific sentinel.
type APIError struct {
	Retcode int
	Msg     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hoyolab api error retcode=%d: %s", e.Retcode, e.Msg)
}

// GeetestError is raised when the check-in endpoint demands an interactive
// captcha. It is an expected business state, not a failure.
type GeetestError struct {
	Challenge GeetestChallenge
}

func (e *GeetestError) Error() string {
	return "check-in blocked by geetest captcha challenge"
}

// invalidCookieRetcodes are the retcodes the API uses for dead sessions.
var invalidCookieRetcodes = map[int]bool{
	-100:  true,
	-1000: true,
	-1071: true,
	10001: true,
	10103: true,
}

func classifyRetcode(retcode int, msg string) error {
	switch {
	case retcode == 0:
		return nil
	case retcode == retcodeAlreadyClaimed:
		return ErrAlreadyClaimed
	case invalidCookieRetcodes[retcode]:
		return ErrInvalidCookies
	default:
		return &APIError{Retcode: retcode, Msg: msg}
	}
}

// IsNoCharacter reports the "no character found for this account" rejection.
func IsNoCharacter(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Retcode == retcodeNoCharacter
}

// IsServerBusy reports the transient-but-terminal "server busy" rejection.
func IsServerBusy(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Retcode == retcodeServerBusy
}

package usecase

import "errors"

var (
	// ErrCredentialExpired marks upstream failures caused by a stale
	// session token. The session loop backs off much longer on these,
	// since retries cannot succeed until the operator refreshes the token.
	ErrCredentialExpired = errors.New("upstream session token expired")

	// ErrNoActiveAccount means the user has no active broker account, so
	// no session can be started. Terminal for the session loop.
	ErrNoActiveAccount = errors.New("no active broker account")

	// ErrSessionNotRunning is returned by control operations that require
	// a live session.
	ErrSessionNotRunning = errors.New("session not running")
)

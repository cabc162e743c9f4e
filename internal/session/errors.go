package session

import "errors"

// Sentinel errors for session operations.
var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoRefresher    = errors.New("session has no refresher configured")
)

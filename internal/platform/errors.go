package platform

import "fmt"

// AuthenticationError indicates the provider holds no usable credentials.
type AuthenticationError struct {
	Platform Type
	Reason   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: not authenticated: %s", e.Platform, e.Reason)
}

// AuthExchangeError indicates the OAuth code exchange failed.
type AuthExchangeError struct {
	Platform   Type
	StatusCode int
	Body       string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("%s: code exchange failed with status %d", e.Platform, e.StatusCode)
}

// NoRefreshTokenError indicates a refresh was requested but no refresh
// token is held.
type NoRefreshTokenError struct {
	Platform Type
}

func (e *NoRefreshTokenError) Error() string {
	return fmt.Sprintf("%s: no refresh token held", e.Platform)
}

// RefreshFailedError wraps a network or auth failure during token refresh.
// Callers continue with the stale token and log rather than hard-failing.
type RefreshFailedError struct {
	Platform Type
	Err      error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("%s: token refresh failed: %v", e.Platform, e.Err)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// UnsupportedPlatformError is a fatal configuration error: the deployment
// asked for a platform no adapter implements.
type UnsupportedPlatformError struct {
	Platform Type
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %s", e.Platform)
}

// OperationError wraps any remote API failure for content and fetch
// operations.
type OperationError struct {
	Platform   Type
	Op         string
	StatusCode int
	Err        error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s failed: %v", e.Platform, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s failed with status %d", e.Platform, e.Op, e.StatusCode)
}

func (e *OperationError) Unwrap() error { return e.Err }

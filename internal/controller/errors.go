package controller

import "errors"

// Sentinel errors returned by Manager methods. Callers match these with
// errors.Is after a wrapping %w.
var (
	// ErrSessionNotFound is returned by Execute when the session id is not
	// registered. ReleaseSession and GetSessionInfo report the same
	// condition via a bool instead, since both are expected to be called
	// on an id that may already be gone.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned by Execute when the session is not in
	// the Ready state (it is Creating, Executing, Destroying or Error).
	ErrSessionBusy = errors.New("session not ready")

	// ErrCreateFailed wraps any failure in the CreateSession protocol,
	// before or after the registry record was allocated, so callers can tell a
	// provisioning failure apart from a bad request.
	ErrCreateFailed = errors.New("session creation failed")
)

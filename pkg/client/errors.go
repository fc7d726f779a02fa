package client

import "errors"

var (
	// ErrDaemonNotRunning means the daemon socket does not exist.
	ErrDaemonNotRunning = errors.New("q0 daemon is not running")

	// ErrPermissionDenied means the socket exists but may not be opened by
	// this user.
	ErrPermissionDenied = errors.New("permission denied on the q0 daemon socket")

	// ErrNotFound wraps a 404 from the daemon, usually an unknown session.
	ErrNotFound = errors.New("not found")
)

package remote

import "errors"

// Errors returned by Client implementations.
//
// Check them with errors.Is:
//
//	if errors.Is(err, remote.ErrNotFound) {
//	    // recreate the page
//	}
var (
	// ErrNotFound is returned when a page or block id no longer resolves.
	ErrNotFound = errors.New("remote object not found")

	// ErrArchived is returned when the remote refuses an operation because
	// the target or one of its ancestors is archived.
	ErrArchived = errors.New("remote object is archived")

	// ErrRateLimited is returned when the remote rejects a call for
	// exceeding its request rate.
	ErrRateLimited = errors.New("remote rate limit exceeded")

	// ErrUnauthorized is returned when the credential is missing or invalid.
	ErrUnauthorized = errors.New("remote credential rejected")
)

// IsRecoverable reports whether err can be recovered by recreating or
// restoring the target page.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrArchived)
}

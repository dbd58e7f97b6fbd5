package sync

import (
	"errors"
	"fmt"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// ErrNoRemoteRoot is returned before any work is done when the remote root
// page or the credential is not configured.
var ErrNoRemoteRoot = errors.New("remote root page is not configured")

// errParentUnavailable marks records skipped because their parent page could
// not be ensured.
var errParentUnavailable = errors.New("parent page unavailable")

// Class groups sync failures by how the engine reacts to them.
type Class int

const (
	// ClassTransient covers every failure the engine cannot repair. The
	// entity is logged and skipped; siblings continue.
	ClassTransient Class = iota

	// ClassNotFound means the mapped page no longer exists. The engine
	// recreates it.
	ClassNotFound

	// ClassArchived means the mapped page or an ancestor is archived. The
	// engine restores it, or recreates it when restoring fails.
	ClassArchived

	// ClassPrerequisite means the pass cannot start at all.
	ClassPrerequisite
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassArchived:
		return "archived"
	case ClassPrerequisite:
		return "prerequisite"
	default:
		return "transient"
	}
}

// Error describes a failure to sync one entity.
type Error struct {
	Class Class
	Kind  schema.Kind
	ID    string
	Err   error
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Kind, e.ID, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps a remote error to a Class.
func classify(err error) Class {
	switch {
	case errors.Is(err, ErrNoRemoteRoot), errors.Is(err, remote.ErrUnauthorized):
		return ClassPrerequisite
	case errors.Is(err, remote.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, remote.ErrArchived):
		return ClassArchived
	default:
		return ClassTransient
	}
}

// wrap attaches entity identity and a class to err. An existing *Error keeps
// its class.
func wrap(kind schema.Kind, id string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		if se.Kind == "" {
			se.Kind, se.ID = kind, id
		}
		return se
	}
	return &Error{Class: classify(err), Kind: kind, ID: id, Err: err}
}

// ClassOf returns the class of a sync error, or ClassTransient for any other
// error.
func ClassOf(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return classify(err)
}

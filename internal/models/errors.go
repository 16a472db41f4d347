package models

import "errors"

// Error kinds shared by the engine, the client and the stores.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrInvalid           = errors.New("invalid")
)

// KindOf returns the sentinel that err wraps, or ErrRemoteUnavailable when
// err carries none of them.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrPermissionDenied, ErrInvalid, ErrRemoteUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrRemoteUnavailable
}

// KindName returns the wire name of an error kind.
func KindName(kind error) string {
	switch kind {
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrInvalid:
		return "invalid"
	default:
		return "remote_unavailable"
	}
}

// KindFromName is the inverse of KindName.
func KindFromName(name string) error {
	switch name {
	case "not_found":
		return ErrNotFound
	case "conflict":
		return ErrConflict
	case "permission_denied":
		return ErrPermissionDenied
	case "invalid":
		return ErrInvalid
	default:
		return ErrRemoteUnavailable
	}
}

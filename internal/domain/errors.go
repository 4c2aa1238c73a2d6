package domain

import "errors"

// Access errors shared by every service.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

// RequireUser returns ErrUnauthenticated for an anonymous identity.
func (i Identity) RequireUser() error {
	if !i.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// RequireAdmin returns ErrUnauthenticated or ErrForbidden unless the
// identity is an administrator.
func (i Identity) RequireAdmin() error {
	if err := i.RequireUser(); err != nil {
		return err
	}
	if !i.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

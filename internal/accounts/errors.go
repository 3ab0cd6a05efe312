package accounts

import "errors"

var (
	// ErrDuplicateAccount is reported when the email is already registered.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	// Deliberately indistinguishable to the caller to prevent account
	// enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidSession is reported when a presented token fails
	// verification or has no live session entry.
	ErrInvalidSession = errors.New("invalid or expired session")
)

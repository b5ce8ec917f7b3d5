package sm

import "errors"

var (
	errInvalidKeyLength = errors.New("sm: invalid session key length")
	errUnalignedMessage = errors.New("sm: message not block-aligned")
	errBadPadding       = errors.New("sm: invalid ISO 7816-4 padding")
)

// Error reports a secure messaging failure. A MAC mismatch on Unwrap is
// fatal for the session: the caller must not attempt another exchange
// against it and must re-establish SM (BAC or PACE) before continuing.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "sm: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

var errMACMismatch = errors.New("MAC verification failed")

package passport

import "fmt"

// ErrorKind classifies a DocumentError for both programmatic dispatch
// (the retry policy in session.go) and the user-visible rendering table
// below, grounded on cunicu-go-piv/error.go's AuthError/wrapCode pattern
// of collapsing status-word-carrying errors into a small typed taxonomy.
type ErrorKind int

const (
	KindNFCNotSupported ErrorKind = iota
	KindTagNotValid
	KindMoreThanOneTagFound
	KindConnectionError
	KindUserCanceled
	KindTimeout
	KindInvalidMRZKey
	KindResponseError
	KindSMError
	KindPACEError
	KindChipAuthError
	KindPassiveAuthError
	KindUnexpectedError
)

// DocumentError is the error type every ReadDocument failure is reported
// as; C1-C5 errors are wrapped into one of these kinds by session.go
// before being returned or handed to OnDisplayMessage.
type DocumentError struct {
	Kind        ErrorKind
	Description string
	SW1, SW2    byte
	Err         error

	// Message overrides UserMessage()'s rendering when non-empty. Set by
	// OnDisplayMessage returning a non-nil override for the DisplayError
	// step that reports this error.
	Message string
}

func (e *DocumentError) Error() string {
	switch e.Kind {
	case KindResponseError:
		return fmt.Sprintf("passport: response error: %s (0x%02X, 0x%02X)", e.Description, e.SW1, e.SW2)
	case KindPACEError:
		return fmt.Sprintf("passport: PACE error: %s", e.Description)
	case KindPassiveAuthError:
		return fmt.Sprintf("passport: passive authentication error: %s", e.Description)
	default:
		if e.Err != nil {
			return fmt.Sprintf("passport: %s: %v", e.Kind.String(), e.Err)
		}
		return fmt.Sprintf("passport: %s", e.Kind.String())
	}
}

func (e *DocumentError) Unwrap() error { return e.Err }

// UserMessage renders the exact user-visible text for this error kind.
func (e *DocumentError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindInvalidMRZKey:
		return "MRZ Key not valid for this document."
	case KindMoreThanOneTagFound:
		return "More than 1 tags was found. Please present only 1 tag."
	case KindTagNotValid:
		return "Tag not valid."
	case KindConnectionError:
		return "Connection error. Please try again."
	case KindResponseError:
		return fmt.Sprintf("Sorry, there was a problem reading the Document. %s - (0x%02X, 0x%02X)",
			e.Description, e.SW1, e.SW2)
	default:
		return "Sorry, there was a problem reading the Document. Please try again"
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindNFCNotSupported:
		return "NFCNotSupported"
	case KindTagNotValid:
		return "TagNotValid"
	case KindMoreThanOneTagFound:
		return "MoreThanOneTagFound"
	case KindConnectionError:
		return "ConnectionError"
	case KindUserCanceled:
		return "UserCanceled"
	case KindTimeout:
		return "Timeout"
	case KindInvalidMRZKey:
		return "InvalidMRZKey"
	case KindResponseError:
		return "ResponseError"
	case KindSMError:
		return "SMError"
	case KindPACEError:
		return "PACEError"
	case KindChipAuthError:
		return "ChipAuthError"
	case KindPassiveAuthError:
		return "PassiveAuthError"
	default:
		return "UnexpectedError"
	}
}

func newDocumentError(kind ErrorKind, err error) *DocumentError {
	return &DocumentError{Kind: kind, Err: err}
}

func newResponseError(description string, sw1, sw2 byte) *DocumentError {
	return &DocumentError{Kind: KindResponseError, Description: description, SW1: sw1, SW2: sw2}
}

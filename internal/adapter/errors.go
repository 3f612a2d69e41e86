package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized adapter errors.
var (
	ErrUnavailable     = errors.New("UNAVAILABLE")
	ErrBusy            = errors.New("BUSY")
	ErrNotSupported    = errors.New("NOT_SUPPORTED")
	ErrNotScanning     = errors.New("NOT_SCANNING")
	ErrInternal        = errors.New("INTERNAL")
	ErrInvalidCallback = errors.New("INVALID_CALLBACK")
)

// TokenMap defines the error token mapping for a specific backend.
type TokenMap struct {
	Unavailable  []string // Tokens that map to UNAVAILABLE
	Busy         []string // Tokens that map to BUSY
	NotSupported []string // Tokens that map to NOT_SUPPORTED
	NotScanning  []string // Tokens that map to NOT_SCANNING
}

// BackendErrorMappings contains the error mapping tables for all backends.
//
// Matching is case-insensitive substring search, checked in the order
// NotScanning, Busy, NotSupported, Unavailable. Unknown tokens map to INTERNAL.
// Backends without an entry fall back to "generic".
var BackendErrorMappings = map[string]TokenMap{
	"bluez": {
		Unavailable: []string{
			"org.bluez.Error.NotReady",
			"org.bluez.Error.NotAvailable",
			"org.bluez.Error.DoesNotExist",
			"org.freedesktop.DBus.Error.ServiceUnknown",
			"org.freedesktop.DBus.Error.NoReply",
			"org.bluez.Error.NotAuthorized",
		},
		Busy: []string{
			"org.bluez.Error.InProgress",
			"org.bluez.Error.AlreadyExists",
			"Operation already in progress",
		},
		NotSupported: []string{
			"org.bluez.Error.NotSupported",
			"org.freedesktop.DBus.Error.UnknownMethod",
		},
		NotScanning: []string{
			"No discovery started",
		},
	},
	"tinygo": {
		Unavailable: []string{
			"not enabled",
			"adapter not found",
			"no such device",
		},
		Busy: []string{
			"already in progress",
			"already scanning",
		},
		NotSupported: []string{
			"not supported",
			"not implemented",
		},
		NotScanning: []string{
			"no scan in progress",
			"not scanning",
		},
	},
	"generic": {
		Unavailable: []string{
			"UNAVAILABLE",
			"NOT_READY",
			"POWERED_OFF",
			"OFFLINE",
		},
		Busy: []string{
			"BUSY",
			"IN_PROGRESS",
		},
		NotSupported: []string{
			"NOT_SUPPORTED",
			"UNSUPPORTED",
		},
		NotScanning: []string{
			"NOT_SCANNING",
		},
	},
}

// BackendError wraps a backend error with its normalized code.
type BackendError struct {
	Code     error       // Normalized adapter code
	Original error       // Backend error
	Backend  string      // Backend identifier
	Details  interface{} // Backend payload (opaque)
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%v (%s: %v)", e.Code, e.Backend, e.Original)
}

func (e *BackendError) Unwrap() error {
	return e.Code
}

// NormalizeBackendError maps err using the generic table.
func NormalizeBackendError(err error, payload interface{}) error {
	return NormalizeBackendErrorFor(err, payload, "generic")
}

// NormalizeBackendErrorFor maps err using the table for backend. Errors that
// already carry a normalized code are returned unchanged.
func NormalizeBackendErrorFor(err error, payload interface{}, backend string) error {
	if err == nil {
		return nil
	}

	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	for _, code := range []error{ErrUnavailable, ErrBusy, ErrNotSupported, ErrNotScanning, ErrInternal, ErrInvalidCallback} {
		if errors.Is(err, code) {
			return err
		}
	}

	return &BackendError{
		Code:     mapTokenToCode(err.Error(), backend),
		Original: err,
		Backend:  backend,
		Details:  payload,
	}
}

// mapTokenToCode maps a backend error message to a normalized code.
func mapTokenToCode(msg string, backend string) error {
	tokens, exists := BackendErrorMappings[backend]
	if !exists {
		tokens = BackendErrorMappings["generic"]
	}

	upperMsg := strings.ToUpper(msg)
	matches := func(list []string) bool {
		for _, token := range list {
			if strings.Contains(upperMsg, strings.ToUpper(token)) {
				return true
			}
		}
		return false
	}

	switch {
	case matches(tokens.NotScanning):
		return ErrNotScanning
	case matches(tokens.Busy):
		return ErrBusy
	case matches(tokens.NotSupported):
		return ErrNotSupported
	case matches(tokens.Unavailable):
		return ErrUnavailable
	default:
		return ErrInternal
	}
}

// Code returns the normalized code name for err, or "SUCCESS" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	case errors.Is(err, ErrBusy):
		return ErrBusy.Error()
	case errors.Is(err, ErrNotSupported):
		return ErrNotSupported.Error()
	case errors.Is(err, ErrNotScanning):
		return ErrNotScanning.Error()
	case errors.Is(err, ErrInvalidCallback):
		return ErrInvalidCallback.Error()
	default:
		return ErrInternal.Error()
	}
}

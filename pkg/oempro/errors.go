package oempro

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned when a configuration value is rejected.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMissingAPIURL is returned when a command is issued without an API URL.
	ErrMissingAPIURL = fmt.Errorf("%w: api url is missing", ErrInvalidArgument)
	// ErrUnsupportedResponseFormat is returned when a command is issued while the
	// client is configured for a response format it cannot decode.
	ErrUnsupportedResponseFormat = errors.New("response format is not supported")
	// ErrUnauthenticated is returned by every command except Login until a login succeeds.
	ErrUnauthenticated = errors.New("in order to execute any API command you must be logged in, use Login first")
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("transport error")
)

// TransportError represents a failure to reach the API or to read its reply.
type TransportError struct {
	Command    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: request failed with status %d: %v", e.Command, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Error represents an unsuccessful reply from the Oempro API.
//
// Codes holds every error code the API reported; Message is the human-readable
// text resolved for them.
type Error struct {
	Command string
	Codes   []int
	Message string
}

func newError(command string, codes []int) *Error {
	return &Error{
		Command: command,
		Codes:   codes,
		Message: Message(command, codes...),
	}
}

func (e *Error) Error() string {
	if len(e.Codes) == 0 {
		return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
	}
	codes := make([]string, 0, len(e.Codes))
	for _, c := range e.Codes {
		codes = append(codes, fmt.Sprint(c))
	}
	return fmt.Sprintf("%s failed with error code %s: %s", e.Command, strings.Join(codes, ","), e.Message)
}

// HasCode reports whether the API reported the given code.
func (e *Error) HasCode(code int) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsUnauthenticated checks if the command was rejected because no session exists.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsTransport checks if the error is a transport level failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsAPIError checks if the error is an unsuccessful reply from the API.
func IsAPIError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// IsErrorCode checks if the error is an Oempro API error carrying the given code.
func IsErrorCode(err error, code int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.HasCode(code)
	}
	return false
}

// IsSessionExpired checks if the API rejected the session.
func IsSessionExpired(err error) bool {
	return IsErrorCode(err, CodeSessionExpired)
}

// IsNotEnoughPrivileges checks if the logged in user lacks the privilege for the command.
func IsNotEnoughPrivileges(err error) bool {
	return IsErrorCode(err, CodeNotEnoughPrivileges)
}

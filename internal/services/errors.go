package services

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBody is returned when a call succeeded but the response carries no body to stream.
	ErrEmptyBody = errors.New("response has no body")
	// ErrMissingCredential is returned when the functions API key is not configured.
	ErrMissingCredential = errors.New("api key is not configured")
)

// TransportError is a network failure or a non-2xx response from one of the Wonder functions.
// Message is meant to be shown to the user as is.
type TransportError struct {
	Call       string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: %d", e.Call, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Call, e.Err)
	}
	return e.Call + " failed"
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigurationError reports missing endpoint or credential configuration.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ParseError is a stream line whose JSON payload could not be decoded even after re-buffering.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed stream line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response from an upstream model or speech provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: unexpected status code: %d, body: %s", e.Provider, e.StatusCode, e.Body)
}

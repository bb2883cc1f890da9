package wssrecv

import (
	"errors"
	"fmt"
)

// ErrAlreadyUsed is returned when Receive is called more than once on the
// same Connector.
var ErrAlreadyUsed = errors.New("connector has already been used")

// ConfigurationError reports a problem with local inputs (trust anchor file,
// endpoint URL, configuration file). It is always returned before any
// network I/O takes place.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a failure to establish the WebSocket session,
// including TLS handshake failures and refused connections.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError reports that the remote endpoint ended the session without
// delivering a message.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

package fitblocks

import (
	"crypto/tls"
	"errors"
	"fmt"
)

// AuthError indicates rejected credentials or an expired session.
// Callers should treat this as user-actionable rather than transient.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ConnectionError wraps transport-level failures (timeouts, refused
// connections, TLS problems). Certificate is true when the failure was
// a certificate verification error specifically.
type ConnectionError struct {
	Message     string
	Certificate bool
	Err         error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// APIError indicates an unexpected HTTP status from an otherwise
// reachable endpoint.
type APIError struct {
	Endpoint   string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.Endpoint)
}

// ProtocolError indicates the upstream response did not have the
// expected structure, e.g. a missing CSRF meta tag.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// mapTransportError converts raw http.Client failures into the client
// error taxonomy so transport exceptions never leak to callers.
func mapTransportError(err error) error {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &ConnectionError{
			Message:     "certificate verification failed",
			Certificate: true,
			Err:         err,
		}
	}
	return &ConnectionError{
		Message: "error communicating with the server",
		Err:     err,
	}
}

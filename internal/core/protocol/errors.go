package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrNotOpen              = errors.New("transport is not open")
	ErrClosed               = errors.New("transport is closed")
	ErrUnsupportedTransport = errors.New("unsupported transport kind")
	ErrMalformedFrame       = errors.New("malformed frame")
	ErrFrameTooLarge        = errors.New("frame exceeds size limit")
)

// ErrorKind groups transport failures by how an application should react.
type ErrorKind string

const (
	ErrorConnectionFailed     ErrorKind = "connection_failed"
	ErrorAuthenticationFailed ErrorKind = "authentication_failed"
	ErrorRateLimitExceeded    ErrorKind = "rate_limit_exceeded"
	ErrorTimeout              ErrorKind = "timeout"
	ErrorServerError          ErrorKind = "server_error"
)

// HandshakeError is a rejected connection upgrade or protocol handshake.
type HandshakeError struct {
	// StatusCode is the HTTP status of a rejected upgrade, zero otherwise.
	StatusCode int
	Message    string
	Err        error
}

func (e *HandshakeError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("handshake rejected: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("handshake rejected: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	case e.Message != "":
		return "handshake rejected: " + e.Message
	default:
		return "handshake rejected"
	}
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Classify maps err to an ErrorKind. Typed errors are inspected first; the
// message text is the fallback for servers that only report a string.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorServerError
	}

	var hs *HandshakeError
	if errors.As(err, &hs) && hs.StatusCode != 0 {
		switch {
		case hs.StatusCode == http.StatusUnauthorized || hs.StatusCode == http.StatusForbidden:
			return ErrorAuthenticationFailed
		case hs.StatusCode == http.StatusTooManyRequests:
			return ErrorRateLimitExceeded
		case hs.StatusCode == http.StatusRequestTimeout || hs.StatusCode == http.StatusGatewayTimeout:
			return ErrorTimeout
		case hs.StatusCode >= 500:
			return ErrorServerError
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorConnectionFailed
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		return ErrorConnectionFailed
	case strings.Contains(msg, "auth") || strings.Contains(msg, "token"):
		return ErrorAuthenticationFailed
	case strings.Contains(msg, "rate") || strings.Contains(msg, "limit"):
		return ErrorRateLimitExceeded
	case strings.Contains(msg, "timeout"):
		return ErrorTimeout
	default:
		return ErrorServerError
	}
}

package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// StatusError marks a failed HTTP exchange worth retrying.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus tags err with an HTTP status so Retryable and Throttled see it.
func WithStatus(err error, status int) error {
	return &StatusError{Status: status, Err: err}
}

// Status extracts the status tagged onto err, or 0.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Throttled reports a 429 anywhere in err's chain.
func Throttled(err error) bool {
	return Status(err) == http.StatusTooManyRequests
}

// RetryableStatus lists the HTTP codes a download may retry.
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		(code >= 500 && code != http.StatusNotImplemented && code < 505)
}

var netFailures = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

// Retryable is the default Policy test: tagged status errors, network
// timeouts and dropped connections.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range netFailures {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
)

// StatusError is a non-success HTTP response from a remote API
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Code, e.Body)
}

var transientMarkers = []string{
	"service unavailable",
	"timeout",
	"network",
	"econnreset",
	"etimedout",
	"connection reset",
	"connection aborted",
}

// unavailableStatus matches a 503 reported as a status, not any number that
// happens to contain those digits
var unavailableStatus = regexp.MustCompile(`(?i)(?:^|\bstatus(?:\s+code)?\s*[:=(]?\s*|\berror\s+)503\b`)

// IsTransient reports whether err looks like a temporary failure of the
// remote service.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusServiceUnavailable
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusServiceUnavailable
	}

	msg := strings.ToLower(err.Error())
	if unavailableStatus.MatchString(msg) {
		return true
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Package errors maps errors to low-cardinality class names for metric tags
// and log fields.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/hredge/portal/internal/domain/profile"
)

// Classes for failures the portal knows how to name.
const (
	ClassCanceled           = "canceled"
	ClassTimeout            = "timeout"
	ClassNetwork            = "network"
	ClassIdentityMismatch   = "identity_mismatch"
	ClassBackendAuth        = "backend_unauthorized"
	ClassBackendNotFound    = "backend_not_found"
	ClassBackendRejected    = "backend_rejected"
	ClassBackendUnavailable = "backend_unavailable"
)

// statusError is an error carrying the HTTP status of a failed upstream call.
type statusError interface {
	error
	HTTPStatus() int
}

// Classify returns a class name for err, or "" for nil. Known failures map to
// the Class constants; anything else falls back to the innermost concrete type
// name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var se statusError
	switch {
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case goerrors.Is(err, profile.ErrIdentityMismatch):
		return ClassIdentityMismatch
	case goerrors.As(err, &se):
		return statusClass(se.HTTPStatus())
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	return typeName(err)
}

func statusClass(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassBackendAuth
	case status == http.StatusNotFound:
		return ClassBackendNotFound
	case status == http.StatusGatewayTimeout:
		return ClassTimeout
	case status >= 500:
		return ClassBackendUnavailable
	default:
		return ClassBackendRejected
	}
}

func typeName(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	assert.Equal(t, "sign-in required", Unauthenticated("sign-in required").Error())

	cause := errors.New("connection reset")
	err := Wrap(cause, ErrCodeUpstream, "fetch profile")
	assert.Equal(t, "fetch profile: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing to wrap"))
}

func TestConstructors(t *testing.T) {
	v := ValidationField("role", "unknown role")
	assert.Equal(t, ErrCodeValidation, v.Code)
	assert.Equal(t, "role", v.Field)

	assert.Equal(t, ErrCodeForbidden, Forbidden("no").Code)
	assert.Equal(t, "pay run 7 is already processed", Newf(ErrCodeConflict, "pay run %d is already processed", 7).Message)

	m := Misconfigured(errors.New("no resolver"))
	assert.Equal(t, ErrCodeMisconfigured, m.Code)
	assert.Contains(t, m.Error(), "no resolver")
}

func TestCodeOfAndIs(t *testing.T) {
	wrapped := fmt.Errorf("set role: %w", Forbidden("not allowed"))
	assert.Equal(t, ErrCodeForbidden, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeForbidden))
	assert.False(t, Is(wrapped, ErrCodeNotFound))

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.False(t, Is(nil, ""))
}

func TestFromBackendStatus(t *testing.T) {
	cause := errors.New("backend said no")
	tests := []struct {
		name   string
		status int
		cause  error
		code   ErrorCode
		http   int
		msg    string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, cause: cause, code: ErrCodeForbidden, http: http.StatusForbidden, msg: msgBackendRefused},
		{name: "forbidden", status: http.StatusForbidden, cause: cause, code: ErrCodeForbidden, http: http.StatusForbidden, msg: msgBackendRefused},
		{name: "not found", status: http.StatusNotFound, cause: cause, code: ErrCodeNotFound, http: http.StatusNotFound, msg: msgBackendNotFound},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, cause: cause, code: ErrCodeTimeout, http: http.StatusGatewayTimeout, msg: msgBackendTimeout},
		{name: "client deadline", status: 0, cause: fmt.Errorf("get /me/: %w", context.DeadlineExceeded), code: ErrCodeTimeout, http: http.StatusGatewayTimeout, msg: msgBackendTimeout},
		{name: "canceled", status: 0, cause: context.Canceled, code: ErrCodeCanceled, http: 499, msg: "Request was canceled."},
		{name: "server error", status: http.StatusInternalServerError, cause: cause, code: ErrCodeUpstream, http: http.StatusBadGateway, msg: msgBackendUnavailable},
		{name: "bad request on read", status: http.StatusBadRequest, cause: cause, code: ErrCodeUpstream, http: http.StatusBadGateway, msg: msgBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromBackendStatus(tt.status, tt.cause)
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.msg, err.Message)
			assert.Equal(t, tt.http, HTTPStatus(err))
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeNotFound:        http.StatusNotFound,
		ErrCodeConflict:        http.StatusConflict,
		ErrCodeValidation:      http.StatusBadRequest,
		ErrCodeUnauthenticated: http.StatusUnauthorized,
		ErrCodeForbidden:       http.StatusForbidden,
		ErrCodeUpstream:        http.StatusBadGateway,
		ErrCodeTimeout:         http.StatusGatewayTimeout,
		ErrCodeCanceled:        499,
		ErrCodeMisconfigured:   http.StatusInternalServerError,
		ErrCodeInternal:        http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatus(New(code, "x")), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

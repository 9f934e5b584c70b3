package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"peermeet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeNotFound, "peer not found", http.StatusNotFound)
	assert.Equal(t, "NOT_FOUND: peer not found", err.Error())

	wrapped := WrapError(errors.New("dial timeout"), ErrCodeInternal, "internal error", http.StatusInternalServerError)
	assert.Contains(t, wrapped.Error(), "INTERNAL_ERROR: internal error")
	assert.Contains(t, wrapped.Error(), "dial timeout")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapError(cause, ErrCodeInternal, "wrapped", http.StatusInternalServerError)
	assert.ErrorIs(t, err, cause)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidInputError("bad peer id").
		WithContext("peer_id", "???").
		WithContext("field", "peer")
	assert.Equal(t, "???", err.Context["peer_id"])
	assert.Equal(t, "peer", err.Context["field"])
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{domain.ErrPeerNotFound, ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrNotWaiting, ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrNotAdmitted, ErrCodeConflict, http.StatusConflict},
		{domain.ErrAlreadyConnected, ErrCodeConflict, http.StatusConflict},
		{domain.ErrMeetingLocked, ErrCodeLocked, http.StatusLocked},
		{domain.ErrNotHost, ErrCodeForbidden, http.StatusForbidden},
		{domain.ErrChannelClosed, ErrCodeGone, http.StatusGone},
		{domain.ErrMediaUnavailable, ErrCodeConflict, http.StatusConflict},
		{errors.New("something unexpected"), ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.wantCode)+"/"+tt.err.Error(), func(t *testing.T) {
			got := FromDomain(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestFromDomain_Nil(t *testing.T) {
	assert.Nil(t, FromDomain(nil))
}

func TestFromDomain_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("admit peer-1: %w", domain.ErrNotWaiting)
	got := FromDomain(err)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)
}

func TestIsAppError(t *testing.T) {
	appErr := NewNotFoundError("peer")
	assert.True(t, IsAppError(appErr))
	assert.True(t, IsAppError(fmt.Errorf("handler: %w", appErr)))
	assert.False(t, IsAppError(errors.New("plain")))
}

func TestGetAppError(t *testing.T) {
	appErr := NewConflictError("already connected")
	wrapped := fmt.Errorf("handler: %w", appErr)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Same(t, appErr, got)

	assert.Nil(t, GetAppError(errors.New("plain")))
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusinessError_CodesAndStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        *BusinessError
		wantCode   Code
		wantStatus int
	}{
		{
			name:       "duplicate email",
			err:        NewDuplicateEmailError("john@x.com"),
			wantCode:   CodeDuplicateEmail,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "not found",
			err:        NewNotFoundError("user", "42"),
			wantCode:   CodeNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "update failed",
			err:        NewUpdateFailedError("user", "42"),
			wantCode:   CodeUpdateFailed,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestCodeOf_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", NewDuplicateEmailError("a@b.c"))

	assert.Equal(t, CodeDuplicateEmail, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeDuplicateEmail))
	assert.Equal(t, http.StatusConflict, HTTPStatusOf(wrapped))
}

func TestCodeOf_Validation(t *testing.T) {
	err := NewValidationError("Email", "must be a valid email")

	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusOf(err))
	assert.Equal(t, "validation failed: Email - must be a valid email", err.Error())
}

func TestCodeOf_PlainErrorIsInternal(t *testing.T) {
	err := errors.New("disk full")

	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(err))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestInternalError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternalError("failed to persist", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to persist: boom", err.Error())
}

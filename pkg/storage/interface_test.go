package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network error", &StorageError{Type: ErrorTypeNetworkError}, true},
		{"internal error", &StorageError{Type: ErrorTypeInternal}, true},
		{"not found", &StorageError{Type: ErrorTypeNotFound}, false},
		{"access denied", &StorageError{Type: ErrorTypeAccessDenied}, false},
		{"invalid input", &StorageError{Type: ErrorTypeInvalidInput}, false},
		{"plain error", errors.New("boom"), false},
		{"wrapped storage error", fmt.Errorf("upload: %w", &StorageError{Type: ErrorTypeNetworkError}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestStorageErrorMessage(t *testing.T) {
	err := &StorageError{
		Type:    ErrorTypeAccessDenied,
		Message: "access denied",
		Cause:   errors.New("403"),
	}
	assert.Contains(t, err.Error(), "access_denied")
	assert.Contains(t, err.Error(), "403")

	var storageErr *StorageError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &storageErr))
}

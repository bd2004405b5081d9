package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrNotFound, "course not found"))
	got := FromError(wrapped)
	assert.Equal(t, ErrNotFound.Code, got.Code)
	assert.Equal(t, "course not found", got.Message)
	assert.Equal(t, http.StatusNotFound, got.Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.EqualError(t, got.Unwrap(), "boom")
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrRateLimited, "slow down")
	assert.Equal(t, "slow down", clone.Message)
	assert.Equal(t, "too many requests", ErrRateLimited.Message)
	assert.Nil(t, FromError(nil))
}

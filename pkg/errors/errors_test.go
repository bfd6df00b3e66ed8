package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrInvalidTransition, "cannot APPROVE request in state PENDING")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	wrapped := fmt.Errorf("load: %w", Clone(ErrNotFound, "noc request not found"))
	assert.Equal(t, ErrNotFound.Code, FromError(wrapped).Code)
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(fmt.Errorf("timeout"), ErrDependencyFailure.Code, ErrDependencyFailure.Status, "account deactivation failed")
	assert.Equal(t, "account deactivation failed: timeout", err.Error())
	assert.Nil(t, FromError(nil))
}

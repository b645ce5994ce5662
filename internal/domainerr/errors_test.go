package domainerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodeNotFound, "machine 42 not found")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)

	wrapped := fmt.Errorf("load: %w", err)
	require.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestInternalHidesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("pq: connection refused")
	err := Internal(cause)

	assert.Equal(t, CodeInternal, err.Code)
	assert.Equal(t, InternalMessage, err.Message)
	assert.NotContains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfPlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
	assert.False(t, HasCode(nil, CodeInternal))
	assert.True(t, HasCode(Newf(CodeValidation, "field %s", "brand"), CodeValidation))
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ACCESS_DENIED", ErrAccessDenied.Error())
	assert.Equal(t, "CONFLICT: stale version", New(CodeConflict, "stale version").Error())
}

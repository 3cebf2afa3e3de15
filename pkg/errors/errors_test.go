package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidConfig, "thickness %v", -1)

	assert.Equal(t, ErrCodeInvalidConfig, err.Code)
	assert.Equal(t, "thickness -1", err.Message)
	assert.Equal(t, "INVALID_CONFIG: thickness -1", err.Error())
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeFetchFailed, cause, "fetch %s", "a.glb")

	assert.Equal(t, "FETCH_FAILED: fetch a.glb: connection refused", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}

func TestIs(t *testing.T) {
	inner := Wrap(ErrCodeNotFound, context.Canceled, "missing")
	outer := Wrap(ErrCodeFetchFailed, inner, "fetch")

	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{"direct", New(ErrCodeDisposed, "gone"), ErrCodeDisposed, true},
		{"other code", New(ErrCodeDisposed, "gone"), ErrCodeNoSelection, false},
		{"outer of chain", outer, ErrCodeFetchFailed, true},
		{"inner of chain", outer, ErrCodeNotFound, true},
		{"fmt wrapped", fmt.Errorf("load: %w", inner), ErrCodeNotFound, true},
		{"plain error", errors.New("x"), ErrCodeNotFound, false},
		{"nil", nil, ErrCodeNotFound, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Is(tc.err, tc.code))
		})
	}

	require.ErrorIs(t, outer, context.Canceled)
}

func TestGetCodeAndUserMessage(t *testing.T) {
	err := fmt.Errorf("mount m1: %w", New(ErrCodeMissingMount, "no mount %q", "m1"))

	assert.Equal(t, ErrCodeMissingMount, GetCode(err))
	assert.Equal(t, `no mount "m1"`, UserMessage(err))

	plain := errors.New("boom")
	assert.Equal(t, Code(""), GetCode(plain))
	assert.Equal(t, "boom", UserMessage(plain))
}

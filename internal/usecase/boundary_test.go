package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/logger"
)

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.ToContext(context.Background(), zap.New(core).Sugar()), logs
}

func TestRunPassesDomainErrorsThrough(t *testing.T) {
	t.Parallel()

	ctx, logs := observedContext()
	want := domainerr.New(domainerr.CodeNotFound, "machine x not found")

	_, err := Run(ctx, "find", []any{"machine_id", "x"}, func(context.Context) (int, error) {
		return 0, want
	})

	require.Same(t, want, err)
	assert.Equal(t, 1, logs.FilterMessage("attempt").Len())
	assert.Equal(t, 1, logs.FilterMessage("rejected").Len())
}

func TestRunHidesUnexpectedErrors(t *testing.T) {
	t.Parallel()

	ctx, logs := observedContext()
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")

	v, err := Run(ctx, "find", nil, func(context.Context) (string, error) {
		return "partial", cause
	})

	require.Empty(t, v)
	derr, ok := domainerr.As(err)
	require.True(t, ok)
	assert.Equal(t, domainerr.CodeInternal, derr.Code)
	assert.Equal(t, domainerr.InternalMessage, derr.Message)
	assert.NotContains(t, err.Error(), "10.0.0.5")
	assert.Equal(t, 1, logs.FilterMessage("unexpected error").Len())
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	ctx, logs := observedContext()

	v, err := Run(ctx, "explode", nil, func(context.Context) (*int, error) {
		var m map[string]int
		m["boom"]++
		return new(int), nil
	})

	require.Nil(t, v)
	require.ErrorIs(t, err, domainerr.ErrInternal)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRunErrSuccess(t *testing.T) {
	t.Parallel()

	ctx, logs := observedContext()
	called := false

	err := RunErr(ctx, "noop", []any{"machine_id", "m-1"}, func(context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, called)
	succeeded := logs.FilterMessage("succeeded").All()
	require.Len(t, succeeded, 1)
	assert.Equal(t, "m-1", succeeded[0].ContextMap()["machine_id"])
}

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "keepsake-backend/pkg/errors"
)

type noopCommand struct {
	fail error
}

func (c noopCommand) Validate() error { return nil }

type capturedMetrics struct {
	names      []string
	errs       []error
	errorTypes []string
}

func (c *capturedMetrics) RecordCommandExecution(_ context.Context, name string, _ time.Duration, err error) {
	c.names = append(c.names, name)
	c.errs = append(c.errs, err)
}

func (c *capturedMetrics) RecordError(_ context.Context, errorType string) {
	c.errorTypes = append(c.errorTypes, errorType)
}

func TestMetricsMiddleware_RecordsOutcome(t *testing.T) {
	metrics := &capturedMetrics{}
	b := NewCommandBus(MetricsMiddleware(metrics))

	handler := CommandHandlerFunc(func(_ context.Context, cmd Command) error {
		return cmd.(noopCommand).fail
	})
	require.NoError(t, b.Register(noopCommand{}, handler))

	require.NoError(t, b.Send(context.Background(), noopCommand{}))
	require.Len(t, metrics.names, 1)
	assert.Equal(t, "noopCommand", metrics.names[0])
	assert.NoError(t, metrics.errs[0])
	assert.Empty(t, metrics.errorTypes, "successful commands count no errors")

	failure := pkgerrors.NewNotFoundError("memory")
	require.Error(t, b.Send(context.Background(), noopCommand{fail: failure}))
	require.Len(t, metrics.names, 2)
	assert.Equal(t, []string{string(pkgerrors.ErrorTypeNotFound)}, metrics.errorTypes)
}

func TestCommandBus_DuplicateRegistrationRejected(t *testing.T) {
	b := NewCommandBus()
	handler := CommandHandlerFunc(func(_ context.Context, _ Command) error { return nil })

	require.NoError(t, b.Register(noopCommand{}, handler))
	assert.Error(t, b.Register(noopCommand{}, handler))
}

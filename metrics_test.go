package toolcall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	x := newTestExecutor(t, []Entry{
		handlerEntry("ok", okHandler(1)),
		handlerEntry("fail", func(context.Context, map[string]any, *Capabilities) (any, error) {
			return nil, errors.New("boom")
		}),
		handlerEntry("slow", func(ctx context.Context, _ map[string]any, _ *Capabilities) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}, WithMetrics(m), WithDefaultTimeout(10*time.Millisecond))

	for range 2 {
		_, err := x.Execute(context.Background(), "ok", nil)
		require.NoError(t, err)
	}
	_, _ = x.Execute(context.Background(), "fail", nil)
	_, _ = x.Execute(context.Background(), "slow", nil)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.executions.WithLabelValues("ok", outcomeOK)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.executions.WithLabelValues("fail", outcomeError)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.executions.WithLabelValues("slow", outcomeTimeout)))
	assert.Equal(t, 3, promtest.CollectAndCount(m.duration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.observe("f", outcomeOK, time.Second) })
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

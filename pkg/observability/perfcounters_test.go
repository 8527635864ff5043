package observability_test

import (
	"context"
	"testing"

	"github.com/kouweizhong/eventcore/pkg/observability"
	"github.com/stretchr/testify/require"
)

func TestNewPerfCountersAgainstNoopProvider(t *testing.T) {
	meter := observability.NoopMeterProvider().Meter("eventcore-test")
	counters, err := observability.NewPerfCounters(meter)
	require.NoError(t, err)

	ctx := context.Background()
	counters.SetTotal(ctx, 10)
	counters.RecordProcessed(ctx, "command")
	counters.RecordProcessed(ctx, "event")
	counters.RecordDuration(ctx, 0.5)
}

func TestNilPerfCountersAreNoOp(t *testing.T) {
	var counters *observability.PerfCounters
	ctx := context.Background()
	counters.SetTotal(ctx, 10)
	counters.RecordProcessed(ctx, "command")
	counters.RecordDuration(ctx, 0.5)
}

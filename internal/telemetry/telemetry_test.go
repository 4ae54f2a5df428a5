package telemetry_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/shaharia-lab/verimail/internal/telemetry"
)

func TestSetup_WithoutOTLP(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx := context.Background()

	p, err := telemetry.Setup(ctx, telemetry.Config{ServiceVersion: "test", Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.Nil(t, p.LogHandler(), "log export is off without an endpoint")

	_, span := otel.Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := otel.Meter("test").Int64Counter("bridge_check_total")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "bridge_check_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.EqualValues(t, 3, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "otel metrics are bridged into the registry")
}

func TestShutdown_WithoutRegisterer(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), telemetry.Config{})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

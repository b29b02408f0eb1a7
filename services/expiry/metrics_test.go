package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"guarantee-controlplane/services/campaign"
	"guarantee-controlplane/services/guarantee"
)

func sums(t *testing.T, reader *sdkmetric.ManualReader, name, key string) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range data.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestSweepMetrics(t *testing.T) {
	svc, db := newService(t, &fakeEnqueuer{})
	reader := sdkmetric.NewManualReader()
	svc.metrics = newMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	seedEnrollment(t, db, "e-late", campaign.EnrollmentStatusActive, fixedNow.Add(-time.Hour))
	seedInstance(t, db, "g-late", guarantee.InstanceStatusActive, fixedNow.Add(-time.Hour))
	seedInstance(t, db, "g-late-2", guarantee.InstanceStatusActive, fixedNow.Add(-2*time.Hour))

	_, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	require.Equal(t, map[string]int64{"enrollment": 1, "instance": 2}, sums(t, reader, "expiry.sweep.expired", "kind"))
	require.Equal(t, map[string]int64{"success": 1}, sums(t, reader, "expiry.sweep.runs", "status"))
}

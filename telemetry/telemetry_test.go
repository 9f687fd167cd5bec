package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurements(t *testing.T) {
	m := New()
	m.CreateUpdateObservableHistogram("rampart_request_duration", "request duration")
	m.CreateUpdateObservableHistogram("rampart_request_duration", "request duration")
	m.CreateUpdateCounter("rampart_token_refresh_total", "refreshes")
	m.CreateUpdateObservableGauge("rampart_apply_pending", "pending apply")

	assert.True(t, m.RecordHistogramTime("rampart_request_duration", time.Millisecond))
	assert.False(t, m.RecordHistogramTime("missing", time.Millisecond))
	assert.True(t, m.IncrementCounter("rampart_token_refresh_total"))
	assert.True(t, m.IncrementCounter("rampart_token_refresh_total"))
	assert.True(t, m.SetGauge("rampart_apply_pending", 1))
	assert.False(t, m.SetGauge("missing", 1))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		metric := f.GetMetric()[0]
		switch {
		case metric.GetCounter() != nil:
			values[f.GetName()] = metric.GetCounter().GetValue()
		case metric.GetGauge() != nil:
			values[f.GetName()] = metric.GetGauge().GetValue()
		case metric.GetHistogram() != nil:
			values[f.GetName()] = float64(metric.GetHistogram().GetSampleCount())
		}
	}
	assert.Equal(t, 2.0, values["rampart_token_refresh_total"])
	assert.Equal(t, 1.0, values["rampart_apply_pending"])
	assert.Equal(t, 1.0, values["rampart_request_duration"])
}

func TestRunRejectsPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := New().Run(ctx, cancel, Config{Port: 70000})
	assert.ErrorIs(t, err, ErrPortOutOfRange)
}

package diag

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmitterFiltersBelowMinimumLevel(t *testing.T) {
	var got []Event
	e := New(zap.NewNop(), Warning, func(ev Event) { got = append(got, ev) }).With("session")

	e.Infof("connecting")
	require.Empty(t, got)

	e.Warnf("retrying")
	require.Len(t, got, 1)
	require.Equal(t, "session", got[0].Source)
	require.Equal(t, Warning, got[0].Level)
}

func TestEmitterNilSinkDoesNotPanic(t *testing.T) {
	e := New(zap.NewNop(), Debug, nil)
	require.NotPanics(t, func() { e.Errorf("boom") })
}

func TestNewMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ActiveDownloads.Set(3)
	m.TransfersTotal.WithLabelValues("download", "succeeded").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

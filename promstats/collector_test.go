package promstats

import (
	"testing"

	"github.com/joeycumines/go-combinelock"
	"github.com/joeycumines/go-combinelock/vrand"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the value of every gathered metric, by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	metrics := make(map[string]*dto.Metric, len(mfs))
	for _, mf := range mfs {
		require.Len(t, mf.GetMetric(), 1, mf.GetName())
		metrics[mf.GetName()] = mf.GetMetric()[0]
	}
	return metrics
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func TestRegisterLock(t *testing.T) {
	l, err := combinelock.New(0)
	require.NoError(t, err)
	require.NoError(t, l.Do(func(data *int) { *data++ }))
	require.Panics(t, func() { _ = l.Do(func(*int) { panic(`x`) }) })
	require.ErrorIs(t, l.Do(func(*int) {}), combinelock.ErrPoisoned)

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterLock(reg, `counter`, l))

	metrics := gather(t, reg)
	require.Len(t, metrics, 7)
	assert.Equal(t, 2.0, metrics[`combinelock_tasks_executed_total`].GetCounter().GetValue())
	assert.Equal(t, 1.0, metrics[`combinelock_tasks_panicked_total`].GetCounter().GetValue())
	assert.Equal(t, 1.0, metrics[`combinelock_tasks_rejected_total`].GetCounter().GetValue())
	assert.Equal(t, 3.0, metrics[`combinelock_combiner_sessions_total`].GetCounter().GetValue())
	assert.Equal(t, 1.0, metrics[`combinelock_poisoned`].GetGauge().GetValue())
	assert.Equal(t, map[string]string{`lock`: `counter`}, labels(metrics[`combinelock_parks_total`]))

	require.NoError(t, l.Unpoison())
	metrics = gather(t, reg)
	assert.Equal(t, 0.0, metrics[`combinelock_poisoned`].GetGauge().GetValue())
}

func TestRegisterLock_duplicate(t *testing.T) {
	l, err := combinelock.New(``)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterLock(reg, `a`, l))
	require.Error(t, RegisterLock(reg, `a`, l))
	require.NoError(t, RegisterLock(reg, `b`, l))
}

func TestRegisterPool(t *testing.T) {
	pool, err := vrand.NewPool(vrand.WithResolver(vrand.NoResolver))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	state, err := vrand.NewState(pool)
	require.NoError(t, err)
	require.NoError(t, state.Fill(make([]byte, 16), 0))
	require.NoError(t, state.Close())

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPool(reg, `default`, pool))

	metrics := gather(t, reg)
	require.Len(t, metrics, 12)
	assert.Equal(t, 1.0, metrics[`vrand_fallbacks_total`].GetCounter().GetValue())
	assert.Equal(t, 0.0, metrics[`vrand_regions_mapped_total`].GetCounter().GetValue())
	assert.Equal(t, 0.0, metrics[`vrand_rented_states`].GetGauge().GetValue())
	assert.Equal(t, map[string]string{`pool`: `default`}, labels(metrics[`vrand_free_states`]))
	assert.Equal(t, map[string]string{`lock`: `vrand_pool`, `pool`: `default`}, labels(metrics[`combinelock_tasks_executed_total`]))
}

func TestNewCollector_nil(t *testing.T) {
	assert.PanicsWithValue(t, `promstats: nil lock`, func() { NewLockCollector(`x`, nil) })
	assert.PanicsWithValue(t, `promstats: nil pool`, func() { NewPoolCollector(`x`, nil) })
}

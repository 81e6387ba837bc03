package goblinder

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpObserver_DoesNotPanic(t *testing.T) {
	var o Observer = NoOpObserver{}
	o.ObserveTransaction(128, false, true)
	o.ObserveRefcountChange(true, true)
	o.ObserveDeath()
	o.ObserveArenaUsage(10, 100)
}

func TestPrometheusObserver_CountsTransactions(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveTransaction(100, false, true)
	o.ObserveTransaction(50, true, true)
	o.ObserveTransaction(0, false, false)

	families, err := reg.Gather()
	require.NoError(t, err)

	var txnMetric *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "goblinder_transactions_total" {
			txnMetric = f
		}
	}
	require.NotNil(t, txnMetric, "transactions_total should be registered")
	assert.Len(t, txnMetric.Metric, 3)
}

func TestPrometheusObserver_ArenaUsageRatio(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveArenaUsage(50, 200)

	families, err := reg.Gather()
	require.NoError(t, err)

	var gauge *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "goblinder_arena_usage_ratio" {
			gauge = f
		}
	}
	require.NotNil(t, gauge)
	require.Len(t, gauge.Metric, 1)
	assert.InDelta(t, 0.25, gauge.Metric[0].GetGauge().GetValue(), 0.0001)
}

func TestPrometheusObserver_ArenaUsageZeroTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveArenaUsage(0, 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "goblinder_arena_usage_ratio" {
			assert.Equal(t, float64(0), f.Metric[0].GetGauge().GetValue())
		}
	}
}

func TestPrometheusObserver_DeathsAndRefcounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver(reg)

	o.ObserveDeath()
	o.ObserveDeath()
	o.ObserveRefcountChange(true, true)
	o.ObserveRefcountChange(false, false)

	families, err := reg.Gather()
	require.NoError(t, err)

	var deaths, refcounts *dto.MetricFamily
	for _, f := range families {
		switch f.GetName() {
		case "goblinder_node_deaths_total":
			deaths = f
		case "goblinder_refcount_events_total":
			refcounts = f
		}
	}
	require.NotNil(t, deaths)
	assert.Equal(t, float64(2), deaths.Metric[0].GetCounter().GetValue())
	require.NotNil(t, refcounts)
	assert.Len(t, refcounts.Metric, 2)
}

package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncDispatch("ADD_TO_CART")
	m.IncDispatch("ADD_TO_CART")
	m.ObserveCacheOp("cart", "put", nil, 2*time.Millisecond)
	m.ObserveCacheOp("cart", "put", errors.New("boom"), time.Millisecond)
	m.IncHydration("products", "cache")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "shopsync_dispatch_total", map[string]string{"action": "ADD_TO_CART"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = counterValue(mfs, "shopsync_cache_ops_total", map[string]string{"collection": "cart", "op": "put", "result": ResultError})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "shopsync_cache_ops_total", map[string]string{"collection": "cart", "op": "put", "result": ResultOK})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "shopsync_hydration_total", map[string]string{"domain": "products", "source": "cache"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncDispatch("x")
	m.ObserveCacheOp("cart", "put", nil, time.Second)
	m.IncHydration("cart", "cache")

	empty := New(nil)
	empty.IncDispatch("x")
	empty.IncHydration("", "")
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchesLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue(), nil
			}
		}
		return 0, fmt.Errorf("metric %q has no series %v", name, labels)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range pairs {
		if v, ok := want[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}

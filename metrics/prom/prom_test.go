package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector("mmstore")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	c.RecordGrow("memory", 8192)
	c.RecordAlloc("alloc", 100, false)
	c.RecordAlloc("alloc", 100, true)
	c.RecordFree("alloc", 100)
	c.RecordOp("kv", "add", time.Microsecond, nil)
	c.RecordOp("kv", "add", time.Microsecond, errors.New("fail"))

	assert.Equal(t, float64(8192), testutil.ToFloat64(c.capacity.WithLabelValues("memory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.grows.WithLabelValues("memory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.allocs.WithLabelValues("alloc", "true")))
	assert.Equal(t, float64(200), testutil.ToFloat64(c.allocBytes.WithLabelValues("alloc")))
	assert.Equal(t, float64(100), testutil.ToFloat64(c.freeBytes.WithLabelValues("alloc")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

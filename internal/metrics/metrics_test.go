package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	require.NotNil(t, c)
	assert.NotNil(t, c.rebuildsQueued)
	assert.NotNil(t, c.rebuildsStarted)
	assert.NotNil(t, c.rebuildsCompleted)
	assert.NotNil(t, c.rebuildsFailed)
	assert.NotNil(t, c.activeVersion)
	assert.NotNil(t, c.objPulled)
	assert.NotNil(t, c.recPulled)
	assert.NotNil(t, c.bcastRetries)
	assert.NotNil(t, c.rebuildDuration)
}

func TestCollector_Lifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	assert.NotPanics(t, func() {
		c.RecordQueued()
		c.RecordStarted(7)
		c.RecordBcastRetry()
		c.RecordFinalized(false, 100, 1000, 12.5)
	})
}

func TestCollector_FailedLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	assert.NotPanics(t, func() {
		c.RecordQueued()
		c.RecordStarted(8)
		for i := 0; i < 5; i++ {
			c.RecordBcastRetry()
		}
		c.RecordFinalized(true, 0, 0, 400)
	})
}

func TestCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() {
		NewCollector(reg)
	}, "registering a second collector against the same registry should panic")
}

func TestCollector_ConcurrentUpdates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	done := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		go func(ver uint32) {
			c.RecordQueued()
			c.RecordStarted(ver)
			c.RecordFinalized(false, 1, 10, 0.5)
			done <- struct{}{}
		}(uint32(i))
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}

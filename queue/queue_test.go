package queue

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"insightcache/model/model"
)

func makeUnits(count int) []WorkUnit {
	units := make([]WorkUnit, 0, count)
	for i := 0; i < count; i++ {
		units = append(units, WorkUnit{
			ID:        fmt.Sprintf("unit-%d", i),
			Key:       fmt.Sprintf("cache_key_%d", i),
			CacheType: model.CacheTypeTrends,
			Payload:   model.RefreshWorkPayload{ProjectID: 1, InsightID: uint64(i + 1)},
		})
	}
	return units
}

func TestWorkerPoolRunsAllUnits(t *testing.T) {
	var processed int32
	pool := NewWorkerPool(4, func(unit WorkUnit) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	pool.SubmitBatch(makeUnits(20))
	pool.Wait()
	assert.Equal(t, int32(20), atomic.LoadInt32(&processed))
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	var current, peak int32
	pool := NewWorkerPool(3, func(unit WorkUnit) error {
		running := atomic.AddInt32(&current, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if running <= observed || atomic.CompareAndSwapInt32(&peak, observed, running) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	pool.SubmitBatch(makeUnits(12))
	pool.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestWorkerPoolBoundsConcurrencyAcrossOverlappingBatches(t *testing.T) {
	var current, peak int32
	pool := NewWorkerPool(3, func(unit WorkUnit) error {
		running := atomic.AddInt32(&current, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if running <= observed || atomic.CompareAndSwapInt32(&peak, observed, running) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	pool.SubmitBatch(makeUnits(6))
	pool.SubmitBatch(makeUnits(6))
	pool.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestWorkerPoolIsolatesFailingUnits(t *testing.T) {
	var succeeded int32
	pool := NewWorkerPool(2, func(unit WorkUnit) error {
		if unit.Payload.InsightID%2 == 0 {
			return errors.New("query failed")
		}
		atomic.AddInt32(&succeeded, 1)
		return nil
	})

	pool.SubmitBatch(makeUnits(10))
	pool.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&succeeded))
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	var processed int32
	pool := NewWorkerPool(2, func(unit WorkUnit) error {
		if unit.Payload.InsightID == 3 {
			panic("unexpected result shape")
		}
		atomic.AddInt32(&processed, 1)
		return nil
	})

	pool.SubmitBatch(makeUnits(6))
	pool.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&processed))
}

func TestWorkerPoolEmptyBatch(t *testing.T) {
	pool := NewWorkerPool(2, func(unit WorkUnit) error { return nil })
	pool.SubmitBatch(nil)
	pool.Wait()
}

func TestWorkerPoolAcceptsMultipleBatches(t *testing.T) {
	var processed int32
	pool := NewWorkerPool(2, func(unit WorkUnit) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	pool.SubmitBatch(makeUnits(5))
	pool.SubmitBatch(makeUnits(5))
	pool.Wait()
	assert.Equal(t, int32(10), atomic.LoadInt32(&processed))
}

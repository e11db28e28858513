package queue

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"insightcache/model/model"
	U "insightcache/util"
)

// WorkUnit One independently executable recomputation task. Units carry
// everything they need and may run in any order, including in parallel.
type WorkUnit struct {
	ID        string
	Key       string
	CacheType model.CacheType
	Payload   model.RefreshWorkPayload
}

// Handler Executes one work unit. A returned error fails only that
// unit; sibling units proceed.
type Handler func(unit WorkUnit) error

// Queue Transport for batches of independent work descriptors. No
// ordering guarantee.
type Queue interface {
	SubmitBatch(units []WorkUnit)
}

// WorkerPool Bounded concurrency in-process queue. SubmitBatch returns
// immediately; Wait blocks until all submitted batches have drained.
// The concurrency bound is shared by all batches, overlapping or not.
type WorkerPool struct {
	numRoutines  int
	handler      Handler
	waitGroup    sync.WaitGroup
	routineLimit chan struct{}
}

func NewWorkerPool(numRoutines int, handler Handler) *WorkerPool {
	if numRoutines <= 0 {
		numRoutines = 1
	}
	return &WorkerPool{
		numRoutines:  numRoutines,
		handler:      handler,
		routineLimit: make(chan struct{}, numRoutines),
	}
}

func (pool *WorkerPool) SubmitBatch(units []WorkUnit) {
	if len(units) == 0 {
		return
	}

	pool.waitGroup.Add(len(units))

	go func() {
		for i := range units {
			pool.routineLimit <- struct{}{}
			go func(unit WorkUnit) {
				defer pool.waitGroup.Done()
				defer func() { <-pool.routineLimit }()
				pool.runUnit(unit)
			}(units[i])
		}
	}()
}

func (pool *WorkerPool) runUnit(unit WorkUnit) {
	logCtx := log.WithFields(log.Fields{
		"Method":    "runUnit",
		"WorkID":    unit.ID,
		"CacheKey":  unit.Key,
		"ProjectID": unit.Payload.ProjectID,
	})

	// Catches any panic in unit execution and logs as an error.
	// Prevents one unit from crashing the pool.
	defer func() {
		if recovered := recover(); recovered != nil {
			logCtx.WithField("Panic", recovered).Error("Panic while executing work unit")
		}
	}()

	startTime := U.TimeNowUnix()
	if err := pool.handler(unit); err != nil {
		logCtx.WithError(err).WithField("TimeTaken", U.TimeNowUnix()-startTime).
			Error("Work unit failed")
		return
	}
	logCtx.WithField("TimeTaken", U.TimeNowUnix()-startTime).Debug("Work unit completed")
}

// Wait Blocks until all units from every submitted batch have finished.
func (pool *WorkerPool) Wait() {
	pool.waitGroup.Wait()
}

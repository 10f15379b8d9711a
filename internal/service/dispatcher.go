package service

import (
	"context"
	"sync"
	"time"

	"commerce-ledger/internal/util"

	"go.uber.org/zap"
)

const hookTimeout = 10 * time.Second

// Dispatcher runs fire-and-forget hooks outside the request that triggered them.
// A failing hook is logged and counted, never returned to the caller.
type Dispatcher struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewDispatcher creates a new hook dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{logger: util.GetLogger()}
}

// Go schedules fn without waiting for it. fn gets a fresh context so the
// hook outlives the request.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				util.HookFailuresTotal.WithLabelValues(name).Inc()
				d.logger.Error("Hook panicked", zap.String("hook", name), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			util.HookFailuresTotal.WithLabelValues(name).Inc()
			d.logger.Warn("Hook failed", zap.String("hook", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every scheduled hook has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

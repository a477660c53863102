package task

import (
	"context"
	"log"
	"sync"
)

// Runner owns the process's background goroutines so shutdown can wait for
// them instead of leaking work mid-write.
type Runner struct {
	wg sync.WaitGroup
}

func NewRunner() *Runner {
	return &Runner{}
}

// Go runs fn on its own goroutine. A panic in fn is logged and absorbed so
// one broken task cannot take down the process.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("task: %s panicked: %v", name, rec)
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until every task started via Go has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

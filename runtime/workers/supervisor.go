package workers

import (
	"context"
	"fmt"
	"log/slog"
	"roomsync/contract"
	"roomsync/errors"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

// Supervisor runs long-lived workers, each in its own goroutine.
// A worker returning nil is done for good. A worker that fails or panics is
// restarted after a short delay, unless the context is gone.
// Run returns once every worker goroutine has exited.
type Supervisor struct {
	Cancel    context.CancelFunc
	wg        *sync.WaitGroup
	log       *slog.Logger
	workers   []contract.Worker
	onRestart func(workerName string)
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log}
}

// OnRestart registers a hook called each time a crashed worker is about
// to be restarted.
func (s *Supervisor) OnRestart(fn func(workerName string)) *Supervisor {
	s.onRestart = fn
	return s
}

// Run starts every added worker and blocks until they are all stopped.
// Cancelling ctx or calling Stop stops them.
func (s *Supervisor) Run(ctx context.Context) {
	// 1. Local cancellation tied to the parent ctx
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	// 2. One supervised goroutine per worker
	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision. A panic is recovered and turned
// into ErrWorkerPanic so that one worker never takes the others down.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("Worker panicked", "name", workerName, "panic", r)
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitTimeBeforeRestart):
			}
			if s.onRestart != nil {
				s.onRestart(workerName)
			}
		}
	}()
}

// Stop cancels every worker; Run returns once they have exited.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Worker interface {
	Start(context.Context, StartConfig) error
	Pid() int
	Terminate(time.Duration) error
	Kill(time.Duration) error
	Wait(context.Context) (ExitEvent, error)
	WaitFor(context.Context, time.Duration) (ExitEvent, error)
}

type ProcessWorker struct {
	processLock sync.Mutex
	process     *proc

	// exited is closed after exitEvent and exitErr are set
	exited    chan struct{}
	exitEvent ExitEvent
	exitErr   error

	log *zap.Logger
}

func NewProcessWorker(log *zap.Logger) *ProcessWorker {
	return &ProcessWorker{
		exited: make(chan struct{}),
		log:    log.Named("worker"),
	}
}

var _ Worker = (*ProcessWorker)(nil)

// Start starts the worker process. Cancelling ctx kills the process.
func (w *ProcessWorker) Start(ctx context.Context, config StartConfig) error {
	w.log.With(
		zap.String("command", config.Cmd),
		zap.Strings("args", config.Args),
		zap.String("cwd", config.Cwd),
	).Debug("starting worker process")

	// synchronize access to the process
	w.processLock.Lock()
	defer w.processLock.Unlock()

	// return if the worker is already started
	if w.process != nil {
		return ErrWorkerAlreadyStarted
	}

	// exit early if the context is already cancelled
	if ctx.Err() != nil {
		return fmt.Errorf("failed to start process: %w", ctx.Err())
	}

	process, err := startProc(config, w.log)
	if err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	w.process = process

	go func() {
		<-process.Done()

		w.exitEvent, w.exitErr = getExitEvent(process.err)

		close(w.exited)
	}()

	// wait for the context to be cancelled,
	// and kill the process.
	go func() {
		select {
		case <-process.Done():
			// the process has terminated, do nothing
		case <-ctx.Done():
			process.Kill(-1)
		}
	}()

	return nil
}

// Wait blocks until the worker process exits and returns its exit status.
// Any number of callers may wait. A non-nil error means the exit status
// could not be determined.
func (w *ProcessWorker) Wait(ctx context.Context) (ExitEvent, error) {
	if w.acquireProcess() == nil {
		return ExitEvent{}, ErrWorkerNotStarted
	}

	select {
	case <-ctx.Done():
		return ExitEvent{}, ctx.Err()
	case <-w.exited:
		return w.exitEvent, w.exitErr
	}
}

// WaitFor waits for the worker process to exit, at most for the given
// duration. A non-positive duration waits until ctx is done.
func (w *ProcessWorker) WaitFor(
	ctx context.Context,
	deadline time.Duration,
) (ExitEvent, error) {
	var waitCtx context.Context
	var cancel context.CancelFunc

	if deadline <= 0 {
		waitCtx, cancel = context.WithCancel(ctx)
	} else {
		waitCtx, cancel = context.WithTimeout(ctx, deadline)
	}

	defer cancel()

	return w.Wait(waitCtx)
}

// Terminate requests the worker process to stop and waits up to timeout
// for it to exit. A negative timeout returns without waiting, a zero
// timeout waits indefinitely. Returns ErrKillTimeout if the process
// is still running when the timeout expires.
func (w *ProcessWorker) Terminate(timeout time.Duration) error {
	if process := w.acquireProcess(); process != nil {
		return process.Terminate(timeout)
	}

	return ErrWorkerNotStarted
}

// Kill forcibly stops the worker process, see Terminate.
func (w *ProcessWorker) Kill(timeout time.Duration) error {
	if process := w.acquireProcess(); process != nil {
		return process.Kill(timeout)
	}

	return ErrWorkerNotStarted
}

func (w *ProcessWorker) Pid() int {
	if process := w.acquireProcess(); process != nil {
		return process.pid
	}

	return 0
}

// acquireProcess returns the worker process. The method is thread-safe.
func (w *ProcessWorker) acquireProcess() *proc {
	w.processLock.Lock()
	defer w.processLock.Unlock()

	return w.process
}

// MARK: - Helpers

func getExitEvent(err error) (ExitEvent, error) {
	var cell int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		return ExitEvent{Code: &cell}, nil
	}

	var exitError *exec.ExitError
	if !errors.As(err, &exitError) {
		// waiting failed, the exit status is unknown
		return ExitEvent{}, err
	}

	if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		// the process was terminated by a signal
		cell = int(status.Signal())
		return ExitEvent{Signal: &cell}, nil
	}

	cell = exitError.ExitCode()
	if cell < 0 {
		cell = 1
	}

	return ExitEvent{Code: &cell}, nil
}

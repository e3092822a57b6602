package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// watch blocks until the child of r exits, then delivers the rest of the
// run log, archives it and publishes the terminal event. An abandoned
// run is dropped silently, its terminal event has been published by stop.
func (s *Supervisor) watch(r *run) {
	defer close(r.done)

	log := s.log.With(zap.String("run", r.id), zap.String("script", r.scriptID))

	// the supervisor context kills the child, the wait reports how it died
	exit, err := r.worker.Wait(context.Background())

	s.mu.Lock()
	abandoned := r.abandoned
	r.finishing = !abandoned
	s.mu.Unlock()

	if abandoned {
		log.Warn("abandoned script exited", zap.Int("exit_code", exit.ExitCode()), zap.Error(err))
		return
	}

	if r.poller != nil {
		r.poller.Stop()
	}

	// no log line is published after this
	r.reader.Close()

	var evt Event
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWatch, err)
		log.Error("failed to wait for script", zap.Error(err))
		evt = errorEvent(r.id, fmt.Sprintf("监控进程时出错: %v", err))
	} else {
		log.Info("script finished", zap.Int("exit_code", exit.ExitCode()))
		evt = finishedEvent(r.id, exit.ExitCode())

		if s.config.ArchiveLog != "" {
			if err := archive(s.config.ArchiveLog, r.logPath, r.scriptID, time.Now()); err != nil {
				log.Warn("failed to archive run log", zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	if r.state != stateForceKilled {
		r.state = stateExited
	}
	s.release(r)
	s.mu.Unlock()

	s.events.publish(evt)
}

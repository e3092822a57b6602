package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/cedar-tools/scriptrun/internal/execution/worker"
	"github.com/cedar-tools/scriptrun/util"
	"go.uber.org/zap"
)

// Stop terminates the active run, if any. The child is asked to exit
// and killed once the grace period expires. When Stop returns, the
// terminal event of the run has been published and a new run can be
// started. A child that survives the kill is abandoned with an error
// event. Stop never fails, problems are logged.
func (s *Supervisor) Stop() {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.stop()
}

func (s *Supervisor) stop() {
	s.mu.Lock()
	r := s.current
	if r == nil || r.state != stateRunning {
		s.mu.Unlock()
		return
	}
	r.state = stateTerminating
	s.mu.Unlock()

	log := s.log.With(zap.String("run", r.id), zap.String("script", r.scriptID))
	log.Info("stopping script")

	if r.poller != nil {
		r.poller.Stop()
	}

	stop := s.config.Stop

	err := r.worker.Terminate(stop.GracePeriod)
	if errors.Is(err, worker.ErrKillTimeout) {
		log.Warn("script did not exit in time, killing it", zap.Duration("grace_period", stop.GracePeriod))

		s.mu.Lock()
		r.state = stateForceKilled
		s.mu.Unlock()

		if err := r.worker.Kill(stop.KillTimeout); err != nil {
			log.Warn("failed to kill script", zap.Error(fmt.Errorf("%w: %w", ErrTermination, err)))
		}
	} else if err != nil {
		log.Warn("failed to terminate script", zap.Error(fmt.Errorf("%w: %w", ErrTermination, err)))
	}

	// wait for the watcher to publish the terminal event
	timer := time.NewTimer(stop.KillTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return
	case <-timer.C:
	}

	s.mu.Lock()
	abandon := !r.finishing && !r.abandoned
	if abandon {
		r.abandoned = true
		s.release(r)
	}
	s.mu.Unlock()

	if !abandon {
		// the child exited meanwhile, the watcher is finishing up
		<-r.done
		return
	}

	r.reader.Discard()

	err = fmt.Errorf("%w: still running after %s", ErrTermination, stop.KillTimeout)
	log.Warn("abandoning script",
		zap.Int("pid", r.worker.Pid()),
		zap.Bool("alive", util.IsProcessAlive(r.worker.Pid())),
		zap.Error(err),
	)

	s.events.publish(errorEvent(r.id, fmt.Sprintf("停止脚本时出错: %v", err)))
}

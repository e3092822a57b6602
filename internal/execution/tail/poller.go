package tail

import (
	"fmt"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Poller runs a function on a fixed interval until stopped.
type Poller struct {
	scheduler gocron.Scheduler
	stopOnce  sync.Once
	log       *zap.Logger
}

// NewPoller schedules fn every interval, starting immediately. Runs never
// overlap: a tick that fires while fn is still running is skipped.
func NewPoller(interval time.Duration, fn func(), log *zap.Logger) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid poll interval %s", interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule poll: %w", err)
	}

	s.Start()

	return &Poller{
		scheduler: s,
		log:       log.Named("poller"),
	}, nil
}

// Stop shuts the scheduler down and waits for a running tick to finish.
// It is safe to call Stop more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if err := p.scheduler.Shutdown(); err != nil {
			p.log.Warn("failed to shut down poller", zap.Error(err))
		}
	})
}

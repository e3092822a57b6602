package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cedar-tools/scriptrun/internal/execution/tail"
	"github.com/cedar-tools/scriptrun/internal/execution/worker"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver maps script ids to entry points.
type Resolver interface {
	Resolve(id string) (inventory.Entry, error)
}

type Params struct {
	// Context bounds the lifetime of every child process. Cancelling
	// it kills the active run. Defaults to context.Background().
	Context context.Context

	// Config is the config used to launch and stop runs.
	Config Config

	// Resolver resolves script ids to entry points.
	Resolver Resolver

	// WorkerFactory is a factory function to create and start a new
	// worker. This is called once per run.
	WorkerFactory WorkerFactoryFn

	// Log is the logger to use for the supervisor
	Log *zap.Logger
}

// drainTimeout bounds how long Cleanup waits for slow subscribers.
const drainTimeout = time.Second

type runState int

const (
	stateRunning runState = iota
	stateTerminating
	stateExited
	stateForceKilled
)

func (s runState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateTerminating:
		return "terminating"
	case stateExited:
		return "exited"
	case stateForceKilled:
		return "force_killed"
	}

	return "unknown"
}

// run is the single active execution.
type run struct {
	id         string
	scriptID   string
	createdAt  time.Time
	worker     worker.Worker
	logPath    string
	configPath string

	reader *tail.Reader
	poller *tail.Poller

	// guarded by the supervisor mutex. Once the child exited, finishing
	// is set and the watcher owns the terminal event. Once abandoned is
	// set, stop owns it instead.
	state     runState
	finishing bool
	abandoned bool

	// done is closed when the watcher returns
	done chan struct{}
}

// Supervisor runs at most one script at a time and reports its
// progress as events.
type Supervisor struct {
	// opLock serializes Start, Stop and Cleanup
	opLock sync.Mutex

	// mu guards current and leftovers
	mu      sync.Mutex
	current *run

	// transient files of runs that are no longer active
	leftovers []string

	launcher *launcher
	resolver Resolver
	events   *broker

	config Config
	log    *zap.Logger
}

func New(params Params) (*Supervisor, error) {
	if params.Resolver == nil {
		return nil, errors.New("no resolver provided")
	}

	if params.Context == nil {
		params.Context = context.Background()
	}

	if params.WorkerFactory == nil {
		params.WorkerFactory = defaultWorkerFactory
	}

	if params.Log == nil {
		params.Log = zap.NewNop()
	}

	config := params.Config.withDefaults()

	if err := os.MkdirAll(config.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	log := params.Log.Named("supervisor")

	return &Supervisor{
		launcher: &launcher{
			ctx:     params.Context,
			config:  config,
			factory: params.WorkerFactory,
			log:     log,
		},
		resolver: params.Resolver,
		events:   newBroker(),
		config:   config,
		log:      log,
	}, nil
}

// Subscribe returns a channel receiving every event published from now
// on, and a function to end the subscription. The channel is closed
// once the subscription ends.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Start runs a script. An active run is stopped first. The returned error
// is non-nil if the run could not be started, in which case an error
// event has been published and no run is active. ctx only bounds the
// start itself, the run outlives it.
func (s *Supervisor) Start(ctx context.Context, req RunRequest) (RunInfo, error) {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return RunInfo{}, err
	}

	s.stop()
	s.removeLeftovers()

	log := s.log.With(zap.String("script", req.ScriptID))

	entry, err := s.resolver.Resolve(req.ScriptID)
	if err != nil {
		return RunInfo{}, s.fail(log, fmt.Errorf("%w: %w", ErrScriptNotFound, err), err.Error())
	}

	configPath, err := materialize(s.config.TempDir, req.Config)
	if err != nil {
		return RunInfo{}, s.fail(log, err, fmt.Sprintf("配置序列化失败: %v", err))
	}

	if err := validateConfig(entry, req.Config); err != nil {
		os.Remove(configPath)
		return RunInfo{}, s.fail(log, err, fmt.Sprintf("配置校验失败: %v", err))
	}

	id := uuid.NewString()
	logPath := filepath.Join(s.config.TempDir, fmt.Sprintf("script-%s.log", id))

	w, err := s.launcher.start(launch{
		entry:      entry,
		configPath: configPath,
		logPath:    logPath,
		baseDir:    req.BaseDir,
	})
	if err != nil {
		os.Remove(configPath)
		return RunInfo{}, s.fail(log, err, fmt.Sprintf("启动脚本失败: %v", err))
	}

	r := &run{
		id:         id,
		scriptID:   entry.ID,
		createdAt:  time.Now(),
		worker:     w,
		logPath:    logPath,
		configPath: configPath,
		state:      stateRunning,
		done:       make(chan struct{}),
	}

	r.reader = tail.NewReader(logPath, func(line string) {
		s.events.publish(logLineEvent(id, line))
	}, s.log)

	s.mu.Lock()
	s.current = r
	s.mu.Unlock()

	s.events.publish(startedEvent(id, entry.ID))

	poller, err := tail.NewPoller(s.config.PollInterval, r.reader.Poll, s.log)
	if err != nil {
		// the final drain still delivers the log
		log.Warn("live log disabled", zap.Error(err))
	}
	r.poller = poller

	go s.watch(r)

	log.Info("script started", zap.String("run", id), zap.Int("pid", w.Pid()))

	return s.info(r), nil
}

// Active returns the active run, if any.
func (s *Supervisor) Active() (RunInfo, bool) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()

	if r == nil {
		return RunInfo{}, false
	}

	return s.info(r), true
}

// Cleanup stops the active run, removes the transient files of all
// runs and waits a moment for subscribers to receive the pending events.
// It is meant to be called once on shutdown, but calling it more than
// once is safe.
func (s *Supervisor) Cleanup() {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.stop()
	s.removeLeftovers()

	if !s.events.drain(drainTimeout) {
		s.log.Warn("subscribers did not receive all events", zap.Duration("timeout", drainTimeout))
	}
}

func (s *Supervisor) fail(log *zap.Logger, err error, message string) error {
	log.Error("failed to start script", zap.Error(err))

	s.events.publish(errorEvent("", message))

	return err
}

func (s *Supervisor) info(r *run) RunInfo {
	s.mu.Lock()
	state := r.state
	s.mu.Unlock()

	return RunInfo{
		ID:         r.id,
		ScriptID:   r.scriptID,
		Pid:        r.worker.Pid(),
		State:      state.String(),
		LogPath:    r.logPath,
		ConfigPath: r.configPath,
		StartedAt:  r.createdAt,
	}
}

// release clears r as the active run and marks its files for removal.
// Must be called with mu held.
func (s *Supervisor) release(r *run) {
	if s.current == r {
		s.current = nil
	}

	s.leftovers = append(s.leftovers, r.logPath, r.configPath)
}

func (s *Supervisor) removeLeftovers() {
	s.mu.Lock()
	files := s.leftovers
	s.leftovers = nil
	s.mu.Unlock()

	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to remove transient file", zap.String("file", f), zap.Error(err))
		}
	}
}

package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cedar-tools/scriptrun/internal/execution/supervisor"
	"github.com/cedar-tools/scriptrun/internal/execution/worker"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/cedar-tools/scriptrun/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const helloScript = `name=$(sed -n 's/.*"name": "\(.*\)".*/\1/p' "$1")
printf '你好, %s！\n' "$name" >> "$SCRIPT_LOG_FILE"
`

type fixture struct {
	root    string
	tempDir string
	archive string
	scripts string
}

func newFixture(t *testing.T, scripts map[string]string) *fixture {
	t.Helper()

	root := t.TempDir()
	f := &fixture{
		root:    root,
		tempDir: filepath.Join(root, "tmp"),
		archive: filepath.Join(root, "log", "app.log"),
		scripts: filepath.Join(root, "scripts"),
	}

	for id, body := range scripts {
		path := filepath.Join(f.scripts, filepath.FromSlash(id), "main.sh")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	return f
}

func (f *fixture) config() supervisor.Config {
	return supervisor.Config{
		TempDir:      f.tempDir,
		ArchiveLog:   f.archive,
		PollInterval: 20 * time.Millisecond,
		Output:       supervisor.OutputDiscard,
		Stop: supervisor.StopConfig{
			GracePeriod: 2 * time.Second,
			KillTimeout: 5 * time.Second,
		},
	}
}

func (f *fixture) supervisor(t *testing.T, config supervisor.Config, factory supervisor.WorkerFactoryFn) *supervisor.Supervisor {
	t.Helper()

	inv, err := inventory.New(inventory.Params{
		ScriptsDir: f.scripts,
		ConfigsDir: filepath.Join(f.root, "configs"),
	})
	require.NoError(t, err)

	s, err := supervisor.New(supervisor.Params{
		Config:        config,
		Resolver:      inv,
		WorkerFactory: factory,
		Log:           zap.NewNop(),
	})
	require.NoError(t, err)

	t.Cleanup(s.Cleanup)

	return s
}

func subscribe(t *testing.T, s *supervisor.Supervisor) <-chan supervisor.Event {
	events, cancel := s.Subscribe()
	t.Cleanup(cancel)

	return events
}

// next returns the next event, failing the test after a timeout.
func next(t *testing.T, events <-chan supervisor.Event) supervisor.Event {
	t.Helper()

	select {
	case evt, ok := <-events:
		require.True(t, ok, "event channel closed")
		return evt
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	return supervisor.Event{}
}

// untilTerminal collects events up to and including the terminal event.
func untilTerminal(t *testing.T, events <-chan supervisor.Event) []supervisor.Event {
	t.Helper()

	var got []supervisor.Event
	for {
		evt := next(t, events)
		got = append(got, evt)

		if evt.Terminal() {
			return got
		}
	}
}

func assertFinished(t *testing.T, evt supervisor.Event, code int) {
	t.Helper()

	require.Equal(t, supervisor.EventFinished, evt.Type)
	require.NotNil(t, evt.ExitCode)
	assert.Equal(t, code, *evt.ExitCode)
}

func TestSupervisor_New_RequiresResolver(t *testing.T) {
	_, err := supervisor.New(supervisor.Params{Log: zap.NewNop()})
	assert.Error(t, err)
}

func TestSupervisor_Start_Hello(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	info, err := s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "hello",
		Config:   map[string]any{"name": "Ada"},
		BaseDir:  f.root,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", info.ScriptID)
	assert.NotEmpty(t, info.ID)

	got := untilTerminal(t, events)
	require.Len(t, got, 3)

	assert.Equal(t, supervisor.EventStarted, got[0].Type)
	assert.Equal(t, "hello", got[0].ScriptID)

	assert.Equal(t, supervisor.EventLogLine, got[1].Type)
	assert.Equal(t, "你好, Ada！", got[1].Line)

	assertFinished(t, got[2], 0)

	for _, evt := range got {
		assert.Equal(t, info.ID, evt.RunID)
	}

	_, active := s.Active()
	assert.False(t, active)

	archived, err := os.ReadFile(f.archive)
	require.NoError(t, err)
	assert.Contains(t, string(archived), "脚本运行日志 [hello] @ ")
	assert.Contains(t, string(archived), "你好, Ada！\n")
}

func TestSupervisor_Start_ScriptNotFound(t *testing.T) {
	f := newFixture(t, nil)
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "missing"})
	assert.ErrorIs(t, err, supervisor.ErrScriptNotFound)

	evt := next(t, events)
	assert.Equal(t, supervisor.EventError, evt.Type)
	assert.Equal(t, "脚本文件不存在: "+filepath.Join(f.scripts, "missing"), evt.Message)

	_, active := s.Active()
	assert.False(t, active)
}

func TestSupervisor_Start_ReportsExitCode(t *testing.T) {
	f := newFixture(t, map[string]string{"fail": "echo failing >> \"$SCRIPT_LOG_FILE\"\nexit 3\n"})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "fail"})
	require.NoError(t, err)

	got := untilTerminal(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, "failing", got[1].Line)
	assertFinished(t, got[2], 3)
}

func TestSupervisor_Start_DeliversTrailingPartialLine(t *testing.T) {
	f := newFixture(t, map[string]string{"partial": "printf 'line\\nno newline' >> \"$SCRIPT_LOG_FILE\"\n"})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "partial"})
	require.NoError(t, err)

	got := untilTerminal(t, events)
	require.Len(t, got, 4)
	assert.Equal(t, "line", got[1].Line)
	assert.Equal(t, "no newline", got[2].Line)
	assertFinished(t, got[3], 0)
}

func TestSupervisor_Start_InjectsEnvironment(t *testing.T) {
	script := `{
  echo "args=$#"
  echo "config=$1"
  echo "config_env=$SCRIPT_CONFIG_FILE"
  echo "base=$CEDAR_BASE_DIR"
  echo "archive=$LOG_PATH"
  echo "greeting=$GREETING"
} >> "$SCRIPT_LOG_FILE"
`
	f := newFixture(t, map[string]string{"env": script})

	envFile := filepath.Join(f.root, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GREETING=hi\n"), 0o644))

	config := f.config()
	config.EnvFile = envFile

	s := f.supervisor(t, config, nil)
	events := subscribe(t, s)

	info, err := s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "env",
		BaseDir:  f.root,
	})
	require.NoError(t, err)

	var lines []string
	for _, evt := range untilTerminal(t, events) {
		if evt.Type == supervisor.EventLogLine {
			lines = append(lines, evt.Line)
		}
	}

	assert.Equal(t, []string{
		"args=1",
		"config=" + info.ConfigPath,
		"config_env=" + info.ConfigPath,
		"base=" + f.root,
		"archive=" + f.archive,
		"greeting=hi",
	}, lines)
}

func TestSupervisor_Stop_BeforeAnyOutput(t *testing.T) {
	f := newFixture(t, map[string]string{"slow": "sleep 30\necho late >> \"$SCRIPT_LOG_FILE\"\n"})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	info, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "slow"})
	require.NoError(t, err)

	s.Stop()

	got := untilTerminal(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, supervisor.EventStarted, got[0].Type)
	assert.Equal(t, supervisor.EventFinished, got[1].Type)

	_, active := s.Active()
	assert.False(t, active)

	// stopping an idle supervisor is a no-op
	s.Stop()

	s.Cleanup()
	assert.NoFileExists(t, info.LogPath)
	assert.NoFileExists(t, info.ConfigPath)
}

func TestSupervisor_Stop_EscalatesToKill(t *testing.T) {
	script := "trap '' TERM\necho ready >> \"$SCRIPT_LOG_FILE\"\nsleep 30\n"
	f := newFixture(t, map[string]string{"stubborn": script})

	config := f.config()
	config.Stop.GracePeriod = 300 * time.Millisecond

	s := f.supervisor(t, config, nil)
	events := subscribe(t, s)

	info, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "stubborn"})
	require.NoError(t, err)

	assert.Equal(t, supervisor.EventStarted, next(t, events).Type)

	// the trap is installed once the line is written
	ready := next(t, events)
	require.Equal(t, "ready", ready.Line)

	begin := time.Now()
	s.Stop()
	assert.Less(t, time.Since(begin), config.Stop.GracePeriod+3*time.Second)

	assertFinished(t, next(t, events), -9)
	assert.False(t, util.IsProcessAlive(info.Pid))
}

func TestSupervisor_Start_StopsActiveRun(t *testing.T) {
	f := newFixture(t, map[string]string{
		"slow":  "sleep 30\n",
		"hello": helloScript,
	})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	first, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "slow"})
	require.NoError(t, err)

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)

	second, err := s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "hello",
		Config:   map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	got := untilTerminal(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, supervisor.EventStarted, got[0].Type)
	assert.Equal(t, first.ID, got[1].RunID)
	assertFinished(t, got[1], -15)

	got = untilTerminal(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, supervisor.EventStarted, got[0].Type)
	assert.Equal(t, second.ID, got[0].RunID)
	assert.Equal(t, "你好, Ada！", got[1].Line)
	assertFinished(t, got[2], 0)

	// the files of the first run are gone once the second starts
	assert.NoFileExists(t, first.LogPath)
	assert.NoFileExists(t, first.ConfigPath)
}

func TestSupervisor_Cleanup_Idempotent(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "hello",
		Config:   map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	untilTerminal(t, events)

	s.Cleanup()
	s.Cleanup()

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSupervisor_Start_SerializationError(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})
	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "hello",
		Config:   map[string]any{"callback": func() {}},
	})
	assert.ErrorIs(t, err, supervisor.ErrSerialization)

	evt := next(t, events)
	assert.Equal(t, supervisor.EventError, evt.Type)
	assert.True(t, strings.HasPrefix(evt.Message, "配置序列化失败: "))

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSupervisor_Start_ValidatesSchema(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})

	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(f.scripts, "hello", "schema.json"), []byte(schema), 0o644))

	s := f.supervisor(t, f.config(), nil)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "hello",
		Config:   map[string]any{"name": 42},
	})
	assert.ErrorIs(t, err, supervisor.ErrInvalidConfig)

	evt := next(t, events)
	assert.Equal(t, supervisor.EventError, evt.Type)
	assert.True(t, strings.HasPrefix(evt.Message, "配置校验失败: "))

	_, err = s.Start(context.Background(), supervisor.RunRequest{
		ScriptID: "hello",
		Config:   map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	got := untilTerminal(t, events)
	assertFinished(t, got[len(got)-1], 0)
}

func TestSupervisor_Start_SpawnError(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})

	factory := func(context.Context, worker.StartConfig, *zap.Logger) (worker.Worker, error) {
		return nil, assert.AnError
	}

	s := f.supervisor(t, f.config(), factory)
	events := subscribe(t, s)

	_, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "hello"})
	assert.ErrorIs(t, err, supervisor.ErrSpawn)
	assert.ErrorIs(t, err, assert.AnError)

	evt := next(t, events)
	assert.Equal(t, supervisor.EventError, evt.Type)
	assert.True(t, strings.HasPrefix(evt.Message, "启动脚本失败: "))

	_, active := s.Active()
	assert.False(t, active)

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSupervisor_Start_CancelledContext(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})
	s := f.supervisor(t, f.config(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Start(ctx, supervisor.RunRequest{ScriptID: "hello"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupervisor_Watch_Error(t *testing.T) {
	f := newFixture(t, map[string]string{"hello": helloScript})

	w := &mockWorker{}
	w.On("Pid").Return(42)
	w.On("Wait", mock.Anything).Return(worker.ExitEvent{}, assert.AnError)

	factory := func(context.Context, worker.StartConfig, *zap.Logger) (worker.Worker, error) {
		return w, nil
	}

	s := f.supervisor(t, f.config(), factory)
	events := subscribe(t, s)

	info, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 42, info.Pid)

	got := untilTerminal(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, supervisor.EventStarted, got[0].Type)
	assert.Equal(t, supervisor.EventError, got[1].Type)
	assert.True(t, strings.HasPrefix(got[1].Message, "监控进程时出错: "))

	require.Eventually(t, func() bool {
		_, active := s.Active()
		return !active
	}, time.Second, 10*time.Millisecond)
}

func TestSupervisor_ContextCancelKillsRun(t *testing.T) {
	f := newFixture(t, map[string]string{"slow": "sleep 30\n"})

	inv, err := inventory.New(inventory.Params{ScriptsDir: f.scripts, ConfigsDir: f.root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := supervisor.New(supervisor.Params{
		Context:  ctx,
		Config:   f.config(),
		Resolver: inv,
		Log:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Cleanup)

	events := subscribe(t, s)

	_, err = s.Start(context.Background(), supervisor.RunRequest{ScriptID: "slow"})
	require.NoError(t, err)

	cancel()

	got := untilTerminal(t, events)
	require.Len(t, got, 2)
	assertFinished(t, got[1], -9)
}

// stuckWorker never exits until released, and ignores every signal.
func stuckWorker(release <-chan struct{}) *mockWorker {
	w := &mockWorker{}
	w.On("Pid").Return(424242)
	w.On("Terminate", mock.Anything).Return(worker.ErrKillTimeout)
	w.On("Kill", mock.Anything).Return(worker.ErrKillTimeout)
	w.On("Wait", mock.Anything).Run(func(mock.Arguments) {
		<-release
	}).Return(worker.ExitEvent{}, nil)
	return w
}

func TestSupervisor_Stop_AbandonsStuckRun(t *testing.T) {
	f := newFixture(t, map[string]string{"stuck": "exit 0\n", "hello": helloScript})

	release := make(chan struct{})
	stuck := stuckWorker(release)

	zero := 0
	done := &mockWorker{}
	done.On("Pid").Return(43)
	done.On("Wait", mock.Anything).Return(worker.ExitEvent{Code: &zero}, nil)

	workers := []worker.Worker{stuck, done}
	factory := func(context.Context, worker.StartConfig, *zap.Logger) (worker.Worker, error) {
		w := workers[0]
		workers = workers[1:]
		return w, nil
	}

	config := f.config()
	config.Stop.GracePeriod = 50 * time.Millisecond
	config.Stop.KillTimeout = 100 * time.Millisecond

	s := f.supervisor(t, config, factory)
	events := subscribe(t, s)

	first, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "stuck"})
	require.NoError(t, err)

	second, err := s.Start(context.Background(), supervisor.RunRequest{ScriptID: "hello"})
	require.NoError(t, err)

	// exactly one terminal event for the abandoned run
	got := untilTerminal(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[1].RunID)
	assert.Equal(t, supervisor.EventError, got[1].Type)
	assert.True(t, strings.HasPrefix(got[1].Message, "停止脚本时出错: "))

	got = untilTerminal(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, supervisor.EventStarted, got[0].Type)
	assert.Equal(t, second.ID, got[0].RunID)
	assertFinished(t, got[1], 0)

	// the stuck child finally exits with unread output
	require.NoError(t, os.WriteFile(first.LogPath, []byte("late\n"), 0o644))
	close(release)

	select {
	case evt := <-events:
		t.Fatalf("unexpected event after abandonment: %s %s", evt.Type, evt.RunID)
	case <-time.After(300 * time.Millisecond):
	}

	_, active := s.Active()
	assert.False(t, active)
}

func TestSupervisor_Subscribe_Cancel(t *testing.T) {
	f := newFixture(t, nil)
	s := f.supervisor(t, f.config(), nil)

	events, cancel := s.Subscribe()
	cancel()
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed")
	}
}

// MARK: - mocks

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) Start(ctx context.Context, config worker.StartConfig) error {
	args := m.Called(ctx, config)
	return args.Error(0)
}

func (m *mockWorker) Pid() int {
	args := m.Called()
	return args.Int(0)
}

func (m *mockWorker) Terminate(timeout time.Duration) error {
	args := m.Called(timeout)
	return args.Error(0)
}

func (m *mockWorker) Kill(timeout time.Duration) error {
	args := m.Called(timeout)
	return args.Error(0)
}

func (m *mockWorker) Wait(ctx context.Context) (worker.ExitEvent, error) {
	args := m.Called(ctx)
	return args.Get(0).(worker.ExitEvent), args.Error(1)
}

func (m *mockWorker) WaitFor(ctx context.Context, timeout time.Duration) (worker.ExitEvent, error) {
	args := m.Called(ctx, timeout)
	return args.Get(0).(worker.ExitEvent), args.Error(1)
}

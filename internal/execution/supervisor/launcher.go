package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cedar-tools/scriptrun/internal/execution/worker"
	"github.com/cedar-tools/scriptrun/internal/inventory"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap"
)

// Environment variables injected into every run.
const (
	EnvLogFile    = "SCRIPT_LOG_FILE"
	EnvBaseDir    = "CEDAR_BASE_DIR"
	EnvConfigFile = "SCRIPT_CONFIG_FILE"
	EnvArchiveLog = "LOG_PATH"
)

type WorkerFactoryFn func(context.Context, worker.StartConfig, *zap.Logger) (worker.Worker, error)

func defaultWorkerFactory(
	ctx context.Context,
	config worker.StartConfig,
	log *zap.Logger,
) (worker.Worker, error) {
	w := worker.NewProcessWorker(log)

	if err := w.Start(ctx, config); err != nil {
		return nil, err
	}

	return w, nil
}

// launch is a single launch request.
type launch struct {
	entry      inventory.Entry
	configPath string
	logPath    string
	baseDir    string
}

type launcher struct {
	// ctx bounds the lifetime of all children
	ctx context.Context

	config  Config
	factory WorkerFactoryFn
	log     *zap.Logger
}

// start spawns the child for l. Output is never captured, the child
// reports through the file named by SCRIPT_LOG_FILE.
func (l *launcher) start(req launch) (worker.Worker, error) {
	cmd, args := command(req.entry, req.configPath, l.config.Interpreter)

	startConfig := worker.StartConfig{
		Cmd:  cmd,
		Args: args,
		Env:  l.environment(req),
	}

	if l.config.Output == OutputInherit {
		startConfig.Stdout = os.Stdout
		startConfig.Stderr = os.Stderr
	}

	l.log.Info("launching script",
		zap.String("script", req.entry.ID),
		zap.String("command", cmd),
		zap.Strings("args", args),
	)

	w, err := l.factory(l.ctx, startConfig, l.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	return w, nil
}

func (l *launcher) environment(req launch) map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}

	if l.config.EnvFile != "" {
		extra, err := loadEnvFile(l.config.EnvFile)
		if err != nil {
			l.log.Warn("ignoring env file", zap.String("file", l.config.EnvFile), zap.Error(err))
		}
		for k, v := range extra {
			env[k] = v
		}
	}

	env[EnvLogFile] = req.logPath
	env[EnvConfigFile] = req.configPath

	if req.baseDir != "" {
		if abs, err := filepath.Abs(req.baseDir); err == nil {
			env[EnvBaseDir] = abs
		} else {
			env[EnvBaseDir] = req.baseDir
		}
	}

	if l.config.ArchiveLog != "" {
		env[EnvArchiveLog] = l.config.ArchiveLog
	}

	return env
}

func loadEnvFile(path string) (map[string]string, error) {
	data, err := file.Provider(path).ReadBytes()
	if err != nil {
		return nil, err
	}

	values, err := dotenv.Parser().Unmarshal(data)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string, len(values))
	for k, v := range values {
		env[k] = fmt.Sprint(v)
	}

	return env, nil
}

// command returns the command line for an entry point. The config path
// is always the sole argument seen by the script.
func command(entry inventory.Entry, configPath, interpreter string) (string, []string) {
	switch entry.Kind {
	case inventory.KindCompiled:
		return interpreter, []string{"-c", bootstrap(entry.Dir), configPath}
	case inventory.KindShell:
		return "/bin/sh", []string{entry.Path, configPath}
	case inventory.KindBinary:
		return entry.Path, []string{configPath}
	default:
		return interpreter, []string{entry.Path, configPath}
	}
}

const bootstrapTemplate = `
import os
import sys

script_dir = %s
os.chdir(script_dir)
sys.path.insert(0, script_dir)

try:
    import main
    if hasattr(main, 'main'):
        try:
            main.main(sys.argv[1])
        except TypeError:
            main.main()
    else:
        print("脚本模块已加载，但未找到main函数")
except Exception as e:
    print(f"执行编译脚本时出错: {e}")
    sys.exit(1)
`

// bootstrap imports a compiled main module from dir and calls its main
// function with the config path.
func bootstrap(dir string) string {
	// a JSON string is a valid python string literal
	literal, _ := json.Marshal(dir)

	return fmt.Sprintf(bootstrapTemplate, literal)
}

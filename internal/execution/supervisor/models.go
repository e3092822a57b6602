package supervisor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSerialization  = errors.New("config not serializable")
	ErrInvalidConfig  = errors.New("config does not match schema")
	ErrScriptNotFound = errors.New("script not found")
	ErrSpawn          = errors.New("failed to spawn process")
	ErrWatch          = errors.New("failed to wait for process")
	ErrTermination    = errors.New("failed to terminate process")
)

// RunRequest asks the supervisor to run a script.
type RunRequest struct {
	// ScriptID identifies the script below the scripts dir
	ScriptID string `json:"script_id"`

	// Config is handed to the script as a JSON file
	Config map[string]any `json:"config,omitempty"`

	// BaseDir is exposed to the script as CEDAR_BASE_DIR
	BaseDir string `json:"base_dir,omitempty"`
}

// RunInfo describes the active run.
type RunInfo struct {
	ID         string    `json:"id"`
	ScriptID   string    `json:"script_id"`
	Pid        int       `json:"pid"`
	State      string    `json:"state"`
	LogPath    string    `json:"log_path"`
	ConfigPath string    `json:"config_path"`
	StartedAt  time.Time `json:"started_at"`
}

type EventType string

const (
	EventLogLine  EventType = "log"
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventError    EventType = "error"
)

// Event is a lifecycle event of a run. Line is set for log events,
// ScriptID for started events, ExitCode for finished events and
// Message for error events.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id,omitempty"`
	Time     time.Time `json:"time"`
	Line     string    `json:"line,omitempty"`
	ScriptID string    `json:"script_id,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventFinished || e.Type == EventError
}

func (e Event) String() string {
	switch e.Type {
	case EventLogLine:
		return e.Line
	case EventStarted:
		return fmt.Sprintf("脚本开始执行: %s", e.ScriptID)
	case EventFinished:
		code := 0
		if e.ExitCode != nil {
			code = *e.ExitCode
		}
		return fmt.Sprintf("脚本执行完成，退出码: %d", code)
	case EventError:
		return fmt.Sprintf("脚本执行错误: %s", e.Message)
	}

	return string(e.Type)
}

func logLineEvent(runID, line string) Event {
	return Event{Type: EventLogLine, RunID: runID, Time: time.Now(), Line: line}
}

func startedEvent(runID, scriptID string) Event {
	return Event{Type: EventStarted, RunID: runID, Time: time.Now(), ScriptID: scriptID}
}

func finishedEvent(runID string, exitCode int) Event {
	return Event{Type: EventFinished, RunID: runID, Time: time.Now(), ExitCode: &exitCode}
}

func errorEvent(runID, message string) Event {
	return Event{Type: EventError, RunID: runID, Time: time.Now(), Message: message}
}

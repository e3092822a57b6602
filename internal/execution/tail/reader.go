package tail

import (
	"sync"

	"go.uber.org/zap"
)

// Reader follows a single file and hands every new line to emit.
type Reader struct {
	mu     sync.Mutex
	state  State
	closed bool
	emit   func(string)
	log    *zap.Logger
}

func NewReader(path string, emit func(string), log *zap.Logger) *Reader {
	return &Reader{
		state: State{Path: path},
		emit:  emit,
		log:   log.Named("tail").With(zap.String("path", path)),
	}
}

// Poll emits the complete lines written since the previous call.
// It does nothing once the reader is closed.
func (r *Reader) Poll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.read(Poll)
}

// Close drains the file, including a trailing partial line, and stops
// the reader. No line is emitted after Close returns.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.closed = true
	r.read(Drain)
}

// Discard stops the reader without reading what is left in the file.
func (r *Reader) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *Reader) read(fn func(string, *int64) ([]string, error)) {
	lines, err := fn(r.state.Path, &r.state.Offset)
	if err != nil {
		// retried on the next poll
		r.log.Debug("tail read failed", zap.Error(err))
	}

	for _, line := range lines {
		r.emit(line)
	}
}

package tail

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Sweeper follows every regular file below a directory tree. Lines
// are prefixed with the file path relative to the root.
type Sweeper struct {
	root    string
	skipDir func(name string) bool

	mu     sync.Mutex
	states map[string]*State

	emit func(string)
	log  *zap.Logger
}

type SweeperOption func(*Sweeper)

// WithSkipDir excludes directories whose name matches fn.
func WithSkipDir(fn func(name string) bool) SweeperOption {
	return func(s *Sweeper) {
		s.skipDir = fn
	}
}

func NewSweeper(root string, emit func(string), log *zap.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		root:   root,
		states: make(map[string]*State),
		emit:   emit,
		log:    log.Named("sweeper").With(zap.String("root", root)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Prime moves the offset of every existing file to its end, so that
// only content written afterwards is reported.
func (s *Sweeper) Prime() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.walk(func(path string, info fs.FileInfo) {
		s.states[path] = &State{Path: path, Offset: info.Size()}
	})
}

// Sweep emits the lines appended to any file since the previous sweep.
func (s *Sweeper) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.states))

	err := s.walk(func(path string, _ fs.FileInfo) {
		seen[path] = struct{}{}

		state, ok := s.states[path]
		if !ok {
			state = &State{Path: path}
			s.states[path] = state
		}

		lines, err := Poll(path, &state.Offset)
		if err != nil {
			s.log.Debug("tail read failed", zap.String("path", path), zap.Error(err))
		}

		if len(lines) == 0 {
			return
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		for _, line := range lines {
			s.emit(fmt.Sprintf("[%s] %s", rel, line))
		}
	})
	if err != nil {
		s.log.Debug("sweep failed", zap.Error(err))
	}

	// forget files that were removed
	for path := range s.states {
		if _, ok := seen[path]; !ok {
			delete(s.states, path)
		}
	}
}

func (s *Sweeper) walk(fn func(string, fs.FileInfo)) error {
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			// skip entries that vanished or cannot be read
			return nil
		}

		if d.IsDir() {
			if path != s.root && s.skipDir != nil && s.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		fn(path, info)

		return nil
	})

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

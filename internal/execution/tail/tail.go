// Package tail incrementally reads append-only log files.
package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var ErrTailRead = errors.New("tail read failed")

// State is the read position within a single file.
type State struct {
	Path   string
	Offset int64
}

// Poll returns the complete lines appended to path since offset and
// advances offset past them. A trailing line without newline is left
// for the next call. A missing file yields no lines and no error.
func Poll(path string, offset *int64) ([]string, error) {
	return read(path, offset, false)
}

// Drain is like Poll, but also consumes a trailing partial line.
// It is meant for the last read after the writer has exited.
func Drain(path string, offset *int64) ([]string, error) {
	return read(path, offset, true)
}

func read(path string, offset *int64, final bool) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTailRead, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTailRead, err)
	}

	size := info.Size()

	// the file was truncated or replaced by a shorter one
	if size < *offset {
		*offset = 0
	}

	if size == *offset {
		return nil, nil
	}

	if _, err := f.Seek(*offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTailRead, err)
	}

	buf, err := io.ReadAll(io.LimitReader(f, size-*offset))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTailRead, err)
	}

	consumed := len(buf)
	if !final {
		consumed = bytes.LastIndexByte(buf, '\n') + 1
	}

	*offset += int64(consumed)

	return splitLines(buf[:consumed]), nil
}

func splitLines(data []byte) []string {
	var lines []string

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		lines = append(lines, strings.ToValidUTF8(line, "�"))
	}

	return lines
}

package tail_test

import (
	"path/filepath"
	"testing"

	"github.com/cedar-tools/scriptrun/internal/execution/tail"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestReader_PollAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	var lines []string
	r := tail.NewReader(path, func(line string) {
		lines = append(lines, line)
	}, zap.NewNop())

	// nothing written yet
	r.Poll()
	assert.Empty(t, lines)

	appendFile(t, path, "started\nworking")
	r.Poll()
	assert.Equal(t, []string{"started"}, lines)

	r.Close()
	assert.Equal(t, []string{"started", "working"}, lines)

	// closed readers ignore further writes
	appendFile(t, path, "\nlate\n")
	r.Poll()
	r.Close()
	assert.Equal(t, []string{"started", "working"}, lines)

	assert.Equal(t, path, r.State().Path)
	assert.Equal(t, int64(len("started\nworking")), r.State().Offset)
}

func TestReader_Discard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	var lines []string
	r := tail.NewReader(path, func(line string) {
		lines = append(lines, line)
	}, zap.NewNop())

	appendFile(t, path, "first\npartial")
	r.Poll()

	r.Discard()

	appendFile(t, path, "\nlate\n")
	r.Poll()
	r.Close()

	assert.Equal(t, []string{"first"}, lines)
}

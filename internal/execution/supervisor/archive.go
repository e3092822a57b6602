package supervisor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	archiveRule = strings.Repeat("=", 60)
	archiveSep  = strings.Repeat("-", 60)
)

// archive appends the content of the run log to the archive log. The
// block is written with a single write, so concurrent appends do not
// interleave. A missing run log is not archived.
func archive(archivePath, logPath, scriptID string, now time.Time) error {
	content, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read run log: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("\n" + archiveRule + "\n")
	fmt.Fprintf(&buf, "脚本运行日志 [%s] @ %s\n", scriptID, now.Format(time.DateTime))
	buf.WriteString(archiveSep + "\n")
	buf.Write(content)
	buf.WriteString("\n" + archiveRule + "\n")

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	f, err := os.OpenFile(archivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open archive log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to archive log: %w", err)
	}

	return nil
}

package syncer

import (
	"fmt"
	"log/slog"
)

// Trail is the append-only audit log returned to callers of a sync run.
type Trail struct {
	lines []string
}

// Addf appends a formatted line.
func (t *Trail) Addf(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// Len returns the number of lines recorded so far.
func (t *Trail) Len() int {
	return len(t.lines)
}

// Lines returns a copy of the recorded lines.
func (t *Trail) Lines() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// Log prints the trail to the provided logger.
func (t *Trail) Log(logger *slog.Logger) {
	logger.Info("--- Sync Trail ---")
	for _, line := range t.lines {
		logger.Info(line)
	}
	logger.Info("------------------")
}

package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Narrator collects the timestamped trace of a single diagnostic run. A nil
// Narrator discards everything.
type Narrator struct {
	mu     sync.Mutex
	runID  string
	nowFn  func() time.Time
	logger *zap.Logger
	lines  []string
}

// NewNarrator creates an empty trace for the given run.
func NewNarrator(runID string, nowFn func() time.Time, logger *zap.Logger) *Narrator {
	if nowFn == nil {
		nowFn = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{runID: runID, nowFn: nowFn, logger: logger}
}

// Sayf appends a formatted line.
func (n *Narrator) Sayf(format string, args ...any) {
	if n == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	n.mu.Lock()
	n.lines = append(n.lines, fmt.Sprintf("[%s] %s", n.nowFn().Format("15:04:05"), msg))
	n.mu.Unlock()
	n.logger.Debug(msg, zap.String("run_id", n.runID))
}

// Lines returns a copy of the trace so far.
func (n *Narrator) Lines() []string {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.lines))
	copy(out, n.lines)
	return out
}

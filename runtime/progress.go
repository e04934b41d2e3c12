package runtime

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"doc-classifier/domain"

	"golang.org/x/time/rate"
)

// Counter aggregates progress from concurrent workers.
type Counter struct {
	Processed uint64
	Skipped   uint64
	Failed    uint64
}

func (c *Counter) IncrProcessed() {
	atomic.AddUint64(&c.Processed, 1)
}

func (c *Counter) IncrSkipped() {
	atomic.AddUint64(&c.Skipped, 1)
}

func (c *Counter) IncrFailed() {
	atomic.AddUint64(&c.Failed, 1)
}

// Snapshot reads the counters atomically, one field at a time.
func (c *Counter) Snapshot() Counter {
	return Counter{
		Processed: atomic.LoadUint64(&c.Processed),
		Skipped:   atomic.LoadUint64(&c.Skipped),
		Failed:    atomic.LoadUint64(&c.Failed),
	}
}

// LogProgressSink renders progress updates through slog. Deltas are always
// accumulated; lines are emitted at most every interval so that workers are
// never slowed down by logging.
type LogProgressSink struct {
	log     *slog.Logger
	limiter *rate.Limiter
	total   atomic.Int64
}

func NewLogProgressSink(log *slog.Logger, interval time.Duration) *LogProgressSink {
	return &LogProgressSink{
		log:     log,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (s *LogProgressSink) Report(status domain.Status) {
	total := s.total.Add(int64(status.Delta))
	if !s.limiter.Allow() {
		return
	}
	msg := status.Message
	if len(status.Args) > 0 {
		msg = fmt.Sprintf(status.Message, status.Args...)
	}
	s.log.Info(strings.Repeat("  ", status.Indent)+msg, "done", total)
}

// Total returns the sum of all deltas reported so far.
func (s *LogProgressSink) Total() int64 {
	return s.total.Load()
}

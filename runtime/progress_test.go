package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"doc-classifier/domain"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestLogProgressSink_AccumulatesConcurrentDeltas(t *testing.T) {
	req := require.New(t)
	sink := NewLogProgressSink(logs.GetLoggerFromLevel(slog.LevelDebug), time.Hour)

	// Given many workers reporting at once, with most lines throttled
	err := ParallelFor(context.Background(), 500, 8, NoScratch,
		func(_ context.Context, i int, _ struct{}) error {
			sink.Report(domain.Status{Message: "Encoding %d", Delta: 1, Args: []any{i}})
			return nil
		})

	// Then no delta is lost
	req.NoError(err)
	req.Equal(int64(500), sink.Total())
}

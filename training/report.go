package training

import (
	"fmt"
	"io"
	"time"

	"doc-classifier/evaluation"
)

// WriteReport prints the run figures followed by the confusion matrices it holds.
func WriteReport(w io.Writer, s *Summary, colours bool) {
	if s == nil {
		_, _ = fmt.Fprintln(w, "No run recorded")
		return
	}
	_, _ = fmt.Fprintf(w, "Examples %d (train %d, test %d), %d features, took %s\n",
		s.Examples, s.TrainExamples, s.TestExamples, s.Features, s.Duration.Round(time.Millisecond))
	if s.Complexity > 0 {
		_, _ = fmt.Fprintf(w, "Complexity %g\n", s.Complexity)
	}
	if s.Train != nil {
		evaluation.Render(w, "Training set", s.Train, colours)
	}
	if s.Test != nil {
		evaluation.Render(w, "Testing set", s.Test, colours)
	}
}

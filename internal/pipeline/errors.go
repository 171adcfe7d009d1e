package pipeline

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrLLMNotConfigured means no language-model provider is set; the
	// pipeline cannot plan or reason without one.
	ErrLLMNotConfigured = errors.New("no LLM provider configured")

	// ErrQueryTimeout means the query exceeded its overall deadline.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrQueryCancelled means the caller cancelled the query.
	ErrQueryCancelled = errors.New("query cancelled")
)

// classify maps context failures onto the pipeline's typed errors so that
// callers can distinguish a deadline from a caller cancel without string
// matching. Other errors pass through with the stage attached.
func classify(stage string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w during %s", ErrQueryTimeout, stage)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w during %s", ErrQueryCancelled, stage)
	default:
		return fmt.Errorf("%s: %w", stage, err)
	}
}

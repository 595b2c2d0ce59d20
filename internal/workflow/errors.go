package workflow

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a run does not produce valid output before its deadline.
var ErrTimeout = errors.New("workflow timed out")

// ErrUnknownWorkflow is returned for workflow ids with no definition.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// SchemaError is returned when every attempt produced output that failed the schema.
type SchemaError struct {
	WorkflowID string
	Attempts   int
	Err        error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("workflow %s: output invalid after %d attempts: %v", e.WorkflowID, e.Attempts, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

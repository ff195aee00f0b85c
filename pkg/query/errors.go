package query

import (
	"fmt"
)

// BackendError indicates that the spatial query for one layer failed.
// The planner logs it and carries on with the next layer.
type BackendError struct {
	Layer string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("query backend failed for layer %q: %v", e.Layer, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// EngineUnavailableError indicates that the query or render engine itself
// cannot be used. It is never swallowed.
type EngineUnavailableError struct {
	Engine string
	Err    error
}

func (e *EngineUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s engine unavailable", e.Engine)
	}
	return fmt.Sprintf("%s engine unavailable: %v", e.Engine, e.Err)
}

func (e *EngineUnavailableError) Unwrap() error {
	return e.Err
}

package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so the API edge can pick a status
// code and operators can alert on the right thing. A search that finds
// nothing is a normal result, not an error.
type ErrorKind string

const (
	KindInvalidQuery     ErrorKind = "invalid_query"
	KindMethodDegraded   ErrorKind = "method_degraded"
	KindCacheUnavailable ErrorKind = "cache_unavailable"
	KindContextStore     ErrorKind = "context_store_error"
)

// EngineError wraps a pipeline failure with its kind and the operation that
// raised it.
type EngineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// KindOf extracts the error kind, or "" for errors the engine did not raise.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

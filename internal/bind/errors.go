package bind

import (
	"errors"
	"fmt"
)

// Error kinds reported by binding.
var (
	ErrNoCurrentData         = errors.New("no current data on the context stack")
	ErrSchemaUnsupported     = errors.New("data source does not support schema")
	ErrMissingRelatedCommand = errors.New("related command not found")
	ErrMissingRelationColumn = errors.New("relation column not found")
	ErrAmbiguousCallable     = errors.New("callable not found or ambiguous")
	ErrOneShotIteratorReused = errors.New("forward-only iterator already consumed")
	ErrProviderLoad          = errors.New("data provider failed")
	ErrDepthExceeded         = errors.New("bind depth exceeded")
	ErrUnknownSource         = errors.New("unknown data source")
)

// ProviderError wraps any failure raised while a data source loads.
type ProviderError struct {
	Source  string
	Command string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("data source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("data source %s: command %s: %v", e.Source, e.Command, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches ErrProviderLoad so callers can test the kind without a type assertion.
func (e *ProviderError) Is(target error) bool { return target == ErrProviderLoad }

// IsHard reports whether err is a configuration or programming error that
// aborts binding regardless of conformance mode.
func IsHard(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range []error{
		ErrNoCurrentData,
		ErrSchemaUnsupported,
		ErrAmbiguousCallable,
		ErrOneShotIteratorReused,
		ErrDepthExceeded,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

package pipeline

import (
	"errors"
	"fmt"

	"github.com/born-ml/tomo/internal/padding"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/variant"
)

// ErrConfiguration marks errors raised while setting up a run, before any
// frame is processed. They are never retried.
var ErrConfiguration = errors.New("configuration error")

// configSentinels are the package errors that count as configuration errors
// wherever they surface.
var configSentinels = []error{
	pattern.ErrInvalidPattern,
	pattern.ErrInvalidName,
	pattern.ErrUnknownPattern,
	pattern.ErrNoPatternActive,
	pattern.ErrDuplicate,
	slicing.ErrInvalidFixedDirection,
	slicing.ErrInvalidChunkSize,
	padding.ErrCoreDimPadding,
	padding.ErrInvalidMargin,
	variant.ErrMalformedSelector,
	variant.ErrIncompatibleSources,
	variant.ErrUnknownVariant,
}

// ConfigurationError reports a setup failure of one stage.
type ConfigurationError struct {
	Stage int
	Name  string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("stage %d (%s): configuration error: %v", e.Stage, e.Name, e.Err)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is a configuration error, either
// wrapped by the runner or raised directly by a pattern, slicing, padding or
// variant call.
func IsConfigurationError(err error) bool {
	if errors.Is(err, ErrConfiguration) {
		return true
	}
	for _, sentinel := range configSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// StageError reports a failure while a stage processed a chunk.
type StageError struct {
	Stage int
	Name  string
	Rank  int
	Chunk int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): rank %d: chunk %d: %v", e.Stage, e.Name, e.Rank, e.Chunk, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

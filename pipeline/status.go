package pipeline

import (
	"fmt"

	"github.com/c360/micropipe/errors"
)

// Status is the outcome of a pipeline instantiation.
type Status string

// Instantiation outcomes.
const (
	StatusOK                            Status = "OK"
	StatusConfigurationMissing          Status = "CONFIGURATION_MISSING"
	StatusNonUniquePipelineID           Status = "NON_UNIQUE_PIPELINE_ID"
	StatusQueueInitializationFailed     Status = "QUEUE_INITIALIZATION_FAILED"
	StatusComponentInitializationFailed Status = "COMPONENT_INITIALIZATION_FAILED"
	StatusPipelineInitializationFailed  Status = "PIPELINE_INITIALIZATION_FAILED"
)

// ErrDuplicatePipelineID is returned when a pipeline id is already running.
var ErrDuplicatePipelineID = fmt.Errorf("%w: pipeline id already in use", errors.ErrNonUniqueIdentifier)

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// StatusOf maps an Instantiate error onto its Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, errors.ErrConfigurationMissing):
		return StatusConfigurationMissing
	case errors.Is(err, ErrDuplicatePipelineID):
		return StatusNonUniquePipelineID
	case errors.Is(err, errors.ErrQueueInitializationFailed):
		return StatusQueueInitializationFailed
	case errors.Is(err, errors.ErrComponentInstantiationFailed),
		errors.Is(err, errors.ErrComponentInitializationFailed),
		errors.Is(err, errors.ErrUnknownComponent),
		errors.Is(err, errors.ErrRequiredInputMissing):
		return StatusComponentInitializationFailed
	default:
		return StatusPipelineInitializationFailed
	}
}

package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Pipeline and component taxonomy.
var (
	// ErrRequiredInputMissing is returned by Initialize when a mandatory setting is absent.
	ErrRequiredInputMissing = errors.New("required input missing")
	// ErrComponentInitializationFailed is returned by Initialize for any other setup failure.
	ErrComponentInitializationFailed = errors.New("component initialization failed")
	// ErrComponentInstantiationFailed wraps any failure to build a component from the repository.
	ErrComponentInstantiationFailed = errors.New("component instantiation failed")
	// ErrUnknownComponent means no registration matches a (name, version) pair.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrQueueInitializationFailed means a queue could not be created from its configuration.
	ErrQueueInitializationFailed = errors.New("queue initialization failed")
	// ErrPipelineInstantiationFailed covers wiring failures after queues and components exist.
	ErrPipelineInstantiationFailed = errors.New("pipeline instantiation failed")
	// ErrNonUniqueIdentifier means a pipeline, component, queue or registration id is reused.
	ErrNonUniqueIdentifier = errors.New("non-unique identifier")
	// ErrUnknownWaitStrategy means a queue names a wait strategy that does not exist.
	ErrUnknownWaitStrategy = errors.New("unknown wait strategy")
	// ErrConfigurationMissing means a pipeline configuration or its id is absent.
	ErrConfigurationMissing = errors.New("configuration missing")
)

// Lifecycle and data errors.
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrQueueClosed    = errors.New("queue closed")

	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// sentinelClasses classifies unwrapped errors by the first sentinel they match.
var sentinelClasses = []struct {
	sentinel error
	class    ErrorClass
}{
	{context.DeadlineExceeded, ErrorTransient},
	{ErrPipelineInstantiationFailed, ErrorFatal},
	{ErrQueueInitializationFailed, ErrorFatal},
	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrInvalidConfig, ErrorInvalid},
	{ErrMissingConfig, ErrorInvalid},
	{ErrRequiredInputMissing, ErrorInvalid},
	{ErrConfigurationMissing, ErrorInvalid},
	{ErrNonUniqueIdentifier, ErrorInvalid},
	{ErrUnknownComponent, ErrorInvalid},
	{ErrUnknownWaitStrategy, ErrorInvalid},
}

// Classify returns the class of err. A ClassifiedError keeps its own class;
// otherwise the first matching sentinel decides. Anything left is treated as
// transient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	for _, sc := range sentinelClasses {
		if errors.Is(err, sc.sentinel) {
			return sc.class
		}
	}
	return ErrorTransient
}

// IsTransient reports whether retrying err may succeed.
func IsTransient(err error) bool { return err != nil && Classify(err) == ErrorTransient }

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool { return err != nil && Classify(err) == ErrorFatal }

// IsInvalid reports whether err stems from bad input or configuration.
func IsInvalid(err error) bool { return err != nil && Classify(err) == ErrorInvalid }

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Cause attaches a taxonomy sentinel to an underlying cause so that errors.Is
// matches both.
func Cause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return errors.Join(errs...) }

// Package errors provides standardized error handling for micropipe.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: timeouts and anything unclassified; retrying may succeed
//   - Invalid: bad configuration, unknown components, missing settings
//   - Fatal: failed queue or pipeline construction
//
// # Taxonomy
//
// Pipeline assembly reports failures with the sentinels declared here
// (ErrRequiredInputMissing, ErrComponentInstantiationFailed,
// ErrUnknownComponent, ErrNonUniqueIdentifier and so on). Callers always test
// with errors.Is; Cause attaches a sentinel to an underlying error so both
// remain reachable:
//
//	if err := comp.Initialize(settings); err != nil {
//	    return errors.Cause(errors.ErrComponentInstantiationFailed, err)
//	}
//
// # Wrapping
//
// Wrap and its classified variants produce messages of the form
// "component.method: action failed: cause":
//
//	return errors.WrapInvalid(err, "Manager", "Instantiate", "validate configuration")
package errors

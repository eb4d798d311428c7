// Package failure classifies pipeline errors so that callers and bus consumers
// can decide between rejecting, retrying and acknowledging.
package failure

import (
	"github.com/zeebo/errs"
)

var (
	// InvalidInput is a malformed request at the ingestion boundary. Never retried.
	InvalidInput = errs.Class("invalid input")

	// ExternalService is a failed blob, metadata or bus call. Retryable.
	ExternalService = errs.Class("external service")

	// Processing is an unexpected error during stats or duplicate detection. Retryable.
	Processing = errs.Class("processing")

	// Configuration is a startup-time misconfiguration such as an unknown digest
	// algorithm. Fatal for the affected operation, never retried.
	Configuration = errs.Class("configuration")
)

// Retryable reports whether a message whose handling failed with err should be
// redelivered instead of acknowledged.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if InvalidInput.Has(err) || Configuration.Has(err) {
		return false
	}
	return true
}

// Classified reports whether err already carries one of the taxonomy classes.
func Classified(err error) bool {
	return InvalidInput.Has(err) || ExternalService.Has(err) ||
		Processing.Has(err) || Configuration.Has(err)
}

// Kind names the taxonomy class carried by err, or "unknown". Non-retryable
// classes win when err carries several.
func Kind(err error) string {
	switch {
	case InvalidInput.Has(err):
		return "InvalidInput"
	case Configuration.Has(err):
		return "ConfigurationFault"
	case ExternalService.Has(err):
		return "ExternalServiceFailure"
	case Processing.Has(err):
		return "ProcessingFailure"
	}
	return "unknown"
}

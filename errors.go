package docstruct

import "errors"

var (
	// ErrUnsupportedFormat is returned for file extensions no partitioner handles.
	ErrUnsupportedFormat = errors.New("docstruct: unsupported document format")

	// ErrPartitionFailed is returned when a document cannot be read or parsed.
	ErrPartitionFailed = errors.New("docstruct: partitioning failed")

	// ErrExtractionNotFound is returned when an extraction ID does not exist.
	ErrExtractionNotFound = errors.New("docstruct: extraction not found")

	// ErrStoreDisabled is returned by history operations when persistence is off.
	ErrStoreDisabled = errors.New("docstruct: persistence is disabled")

	// ErrPathNotAllowed is returned when a requested file lies outside the
	// directory a tool is confined to.
	ErrPathNotAllowed = errors.New("docstruct: path outside allowed root")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docstruct: invalid configuration")

	// ErrRemoteRequest is returned when the extraction microservice cannot be reached
	// or answers with an error.
	ErrRemoteRequest = errors.New("docstruct: remote request failed")
)

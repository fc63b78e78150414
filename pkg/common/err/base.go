package err

import (
	"errors"
	"strings"
)

// Error is the base error type for the entire project.
// It provides a consistent structure for error handling across all packages.
//
// Key features:
//   - Package namespacing for error origin tracking
//   - Machine-readable error codes for programmatic handling
//   - Operation context for debugging
//   - Error wrapping with full errors.Is/As support
//   - Optional structured context data
type Error struct {
	// Package identifies the originating package (e.g., "loose", "pack", "refs")
	Package string

	// Code is a machine-readable error code for categorization and handling.
	// Use the taxonomy constants below (CodeNotFound, CodeDecode, ...).
	Code string

	// Op is the operation being performed when the error occurred.
	// Use descriptive names like "read", "write", "scan", "ingest".
	Op string

	// Message provides human-readable context. Keep it brief and actionable.
	Message string

	// Err is the underlying/wrapped error. Can be nil for leaf errors.
	Err error

	// Context holds optional structured metadata about the error.
	// Initialized lazily to avoid allocations when not needed.
	Context map[string]interface{}
}

// Error implements the error interface.
// Format: [package][code] operation: message: wrapped_error
func (e *Error) Error() string {
	var parts []string

	var prefix strings.Builder
	if e.Package != "" {
		prefix.WriteString("[")
		prefix.WriteString(e.Package)
		prefix.WriteString("]")
	}
	if e.Code != "" {
		prefix.WriteString("[")
		prefix.WriteString(e.Code)
		prefix.WriteString("]")
	}
	if prefix.Len() > 0 {
		parts = append(parts, prefix.String())
	}

	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, ": ")

	if e.Err != nil {
		if result != "" {
			result += ": " + e.Err.Error()
		} else {
			result = e.Err.Error()
		}
	}

	return result
}

// Unwrap returns the underlying error for errors.Is() and errors.As() support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables error matching by code for errors.Is() checks.
// Two errors match if they have the same non-empty code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithContext adds a key-value pair to the error's context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetContext retrieves a value from the error's context.
// Returns nil if the key doesn't exist.
func (e *Error) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// New creates a new base error with the specified fields.
func New(pkg, code, op, message string, err error) *Error {
	return &Error{
		Package: pkg,
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with package and operation context.
// Returns nil if err is nil.
func Wrap(err error, pkg, op string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Package: pkg,
		Op:      op,
		Err:     err,
	}
}

// WrapWithCode wraps an error with package, operation, and code.
// Returns nil if err is nil.
func WrapWithCode(err error, pkg, code, op string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Package: pkg,
		Code:    code,
		Op:      op,
		Err:     err,
	}
}

// Error codes used across the object database. Every fallible operation
// returns one of these so callers can branch without string matching.
const (
	// CodeNotFound indicates an object or reference is absent
	CodeNotFound = "NOT_FOUND"

	// CodeDecode indicates malformed bytes in a loose object, pack entry,
	// index, or ref file
	CodeDecode = "DECODE"

	// CodeInflate indicates a decompression failure
	CodeInflate = "INFLATE"

	// CodeDeflate indicates a compression failure
	CodeDeflate = "DEFLATE"

	// CodePackDecode indicates a structural problem in a pack: bad magic or
	// version, a delta cycle, an exceeded depth cap, or a missing base
	CodePackDecode = "PACK_DECODE"

	// CodeIndexDecode indicates a malformed pack index
	CodeIndexDecode = "IDX_DECODE"

	// CodeIndexEncode indicates a pack index could not be produced
	CodeIndexEncode = "IDX_ENCODE"

	// CodeFsIo indicates a filesystem failure; the error context carries
	// the attempted operation and path
	CodeFsIo = "FS_IO"

	// CodeInvalidHash indicates a malformed object digest
	CodeInvalidHash = "INVALID_HASH"

	// CodeInvalidReference indicates a malformed reference name
	CodeInvalidReference = "INVALID_REF"

	// CodeDeltaPlan indicates the delta planner could not produce a valid pack
	CodeDeltaPlan = "DELTA_PLAN"

	// CodeStalled indicates an upstream stream made no progress
	CodeStalled = "STALLED"
)

// IsCode checks if an error has a specific error code.
// Works with wrapped errors.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns empty string if the error is not a base Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FsIo builds a filesystem error carrying the attempted operation and path.
func FsIo(pkg, op, path string, underlying error) *Error {
	e := New(pkg, CodeFsIo, op, "", underlying)
	return e.WithContext("path", path)
}

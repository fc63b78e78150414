// Package err provides a standardized error handling system for the entire
// project.
//
// # Design Principles
//
// 1. Consistency: All packages use the same base error structure
// 2. Context: Errors carry package, operation, and code information
// 3. Wrapping: Full support for Go 1.13+ error wrapping with errors.Is/As
// 4. Categorization: Machine-readable error codes enable programmatic handling
//
// # Usage Patterns
//
// Create leaf errors with New, annotate pass-through errors with Wrap or
// WrapWithCode, and branch on codes with IsCode:
//
//	if err.IsCode(e, err.CodeNotFound) {
//	    // object absent; try the next backend
//	}
//
// Filesystem failures should be built with FsIo so the attempted operation
// and path travel with the error.
package err

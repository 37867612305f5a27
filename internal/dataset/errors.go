// Package dataset validates, merges, persists and queries the merged
// campaign dataset.
package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user-facing merge rejections.
	ErrValidation = errors.New("validation failed")
	// ErrProcessing marks merge failures that are not the caller's fault.
	ErrProcessing = errors.New("error concatenating files")
)

// ValidationError describes why a batch was rejected. Message is shown to
// the client verbatim.
type ValidationError struct {
	File    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func structureError(name string) *ValidationError {
	return &ValidationError{File: name, Message: fmt.Sprintf("File %s has a different structure.", name)}
}

func emptyValuesError(name string) *ValidationError {
	return &ValidationError{File: name, Message: fmt.Sprintf("File %s contains empty values. Please clean the data.", name)}
}

func parseError(name string, err error) *ValidationError {
	return &ValidationError{File: name, Message: fmt.Sprintf("File %s could not be read: %v", name, err), Err: err}
}

var (
	errConcatenatedEmpty = &ValidationError{Message: "The concatenated dataframe contains empty values. Please clean the data."}
	errNoSupportedFiles  = &ValidationError{Message: "no supported files to concatenate"}
)

// Package errors provides custom error types for pylambda.
// Each type carries a stable code so callers can branch on the failure kind
// without matching message strings.
package errors

import (
	"fmt"
)

// PylambdaError is the base interface for all pylambda errors
type PylambdaError interface {
	error
	// Code returns a unique error code for programmatic error handling
	Code() string
}

// baseError provides common functionality for all pylambda errors
type baseError struct {
	code    string
	message string
	cause   error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Code() string {
	return e.code
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// ConfigurationError represents errors in configuration files
type ConfigurationError struct {
	baseError
	Path string
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(path string, message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			code:    "CONFIG_ERROR",
			message: message,
			cause:   cause,
		},
		Path: path,
	}
}

// ValidationError represents a missing or malformed setting
type ValidationError struct {
	baseError
	Field string
}

// NewValidationError creates a new validation error
func NewValidationError(field string, message string, cause error) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			code:    "VALIDATION_ERROR",
			message: message,
			cause:   cause,
		},
		Field: field,
	}
}

// ExecutionError represents a failed external command (pip, docker, python)
type ExecutionError struct {
	baseError
	Command string
}

// NewExecutionError creates a new execution error
func NewExecutionError(command string, message string, cause error) *ExecutionError {
	return &ExecutionError{
		baseError: baseError{
			code:    "EXEC_ERROR",
			message: message,
			cause:   cause,
		},
		Command: command,
	}
}

// PackagingError represents errors while assembling the deployment bundle
type PackagingError struct {
	baseError
	Path string
}

// NewPackagingError creates a new packaging error
func NewPackagingError(path string, message string, cause error) *PackagingError {
	return &PackagingError{
		baseError: baseError{
			code:    "PACKAGING_ERROR",
			message: message,
			cause:   cause,
		},
		Path: path,
	}
}

// AWSError represents a failed AWS API call
type AWSError struct {
	baseError
	Operation string
}

// NewAWSError creates a new AWS error
func NewAWSError(operation string, message string, cause error) *AWSError {
	return &AWSError{
		baseError: baseError{
			code:    "AWS_ERROR",
			message: message,
			cause:   cause,
		},
		Operation: operation,
	}
}

// NotFoundError represents errors when a resource is not found
type NotFoundError struct {
	baseError
	Resource string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string, message string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			code:    "NOT_FOUND",
			message: message,
			cause:   nil,
		},
		Resource: resource,
	}
}

// AlreadyExistsError represents errors when a resource already exists
type AlreadyExistsError struct {
	baseError
	Resource string
}

// NewAlreadyExistsError creates a new already exists error
func NewAlreadyExistsError(resource string, message string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			code:    "ALREADY_EXISTS",
			message: message,
			cause:   nil,
		},
		Resource: resource,
	}
}

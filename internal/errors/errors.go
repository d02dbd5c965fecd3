// Package errors provides centralized error handling with category-based
// classification used across the ClassCount application.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryImageDecode ErrorCategory = "image-decode"
	CategoryModelInit   ErrorCategory = "model-initialization"
	CategoryModelLoad   ErrorCategory = "model-loading"
	CategoryLabelLoad   ErrorCategory = "label-loading"
	CategoryInference   ErrorCategory = "inference"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryDatabase    ErrorCategory = "database"
	CategoryFileIO      ErrorCategory = "file-io"
	CategoryConflict    ErrorCategory = "conflict"
	CategoryNotFound    ErrorCategory = "not-found"
	CategoryGeneric     ErrorCategory = "generic"
)

// EnhancedError wraps an error with component, category and context metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches two enhanced errors by category, so category constants can act
// as sentinels via errors.Is.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() ErrorCategory {
	return ee.Category
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new builder from a formatted message
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Wrap is an alias for New, used when enriching an error from a lower layer.
func Wrap(err error) *ErrorBuilder {
	return New(err)
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ModelContext adds model-specific context
func (eb *ErrorBuilder) ModelContext(modelPath, labelPath string) *ErrorBuilder {
	if modelPath != "" {
		eb.Context("model_path", modelPath)
	}
	if labelPath != "" {
		eb.Context("label_path", labelPath)
	}
	return eb
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	eb.Context("duration_ms", duration.Milliseconds())
	return eb
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	category := eb.category
	if category == "" {
		category = CategoryGeneric
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// Category checks below let callers branch on failure class without
// depending on sentinel error values.

// HasCategory reports whether err (or anything it wraps) carries the category.
func HasCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	for ; err != nil; err = stderrors.Unwrap(err) {
		if stderrors.As(err, &ee) && ee.Category == category {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a caller-input validation error.
func IsValidation(err error) bool { return HasCategory(err, CategoryValidation) }

// IsConflict reports whether err is a uniqueness/conflict error.
func IsConflict(err error) bool { return HasCategory(err, CategoryConflict) }

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool { return HasCategory(err, CategoryNotFound) }

// Standard library passthroughs so callers need a single errors import.

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

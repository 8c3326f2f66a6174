package domain

import (
	"fmt"
)

// Error codes for different failure scenarios
const (
	ErrModelCallFailed   = "MODEL_CALL_FAILED"
	ErrResponseParse     = "RESPONSE_PARSE_FAILED"
	ErrPipelineFailed    = "PIPELINE_FAILED"
	ErrInvalidInput      = "INVALID_INPUT"
	ErrConfigInvalid     = "CONFIG_INVALID"
	ErrProviderExhausted = "PROVIDER_EXHAUSTED"
)

// ModelCallError represents a transport, auth or quota failure from an LLM
// provider. It is captured per call and never aborts the pipeline on its own.
type ModelCallError struct {
	Model   string `json:"model"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *ModelCallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: model %s: %s: %v", ErrModelCallFailed, e.Model, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: model %s: %s", ErrModelCallFailed, e.Model, e.Message)
}

// Unwrap returns the underlying cause
func (e *ModelCallError) Unwrap() error {
	return e.Cause
}

// NewModelCallError creates a new ModelCallError
func NewModelCallError(model, message string, cause error) *ModelCallError {
	return &ModelCallError{
		Model:   model,
		Message: message,
		Cause:   cause,
	}
}

// ParseError represents a well-formed model call whose content could not be
// mapped into a typed record. Every layer defines a deterministic fallback
// value for this case instead of propagating it.
type ParseError struct {
	Layer   string `json:"layer"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: layer %s: %s: %v", ErrResponseParse, e.Layer, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: layer %s: %s", ErrResponseParse, e.Layer, e.Message)
}

// Unwrap returns the underlying cause
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new ParseError
func NewParseError(layer, message string, cause error) *ParseError {
	return &ParseError{
		Layer:   layer,
		Message: message,
		Cause:   cause,
	}
}

// PipelineError represents an irrecoverable pipeline failure. The only path
// that produces one is both Layer-3 model calls failing, since no diagnosis
// can be produced without at least one contributor.
type PipelineError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Causes  []error `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the captured per-call failures
func (e *PipelineError) Unwrap() []error {
	return e.Causes
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(code, message string, causes ...error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
		Causes:  causes,
	}
}

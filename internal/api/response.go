// Package api defines the uniform response envelope and error code catalog
// shared by the CLI commands and the MCP tool surface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes surfaced by the public command surface. SCREAMING_SNAKE_CASE
// by convention; codes are part of the contract with agents and scripts.
const (
	CodeDBNotInitialized   = "DB_NOT_INITIALIZED"
	CodeFunctionNotFound   = "FUNCTION_NOT_FOUND"
	CodeQueueEmpty         = "QUEUE_EMPTY"
	CodeParseError         = "PARSE_ERROR"
	CodeInvalidSchema      = "INVALID_SCHEMA"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodePathNotFound       = "PATH_NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Error is a coded error carried across the public surface.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Errorf builds a coded error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err, unwrapping as needed.
// Non-coded errors map to INTERNAL_ERROR.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternalError
}

// Response is the uniform success/error envelope for every command.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   *Error `json:"error"`
}

// OK wraps a payload in a success envelope.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail wraps an error in an error envelope, preserving its code if present.
func Fail(err error) Response {
	var ce *Error
	if errors.As(err, &ce) {
		return Response{Success: false, Error: ce}
	}
	return Response{Success: false, Error: &Error{Code: CodeInternalError, Message: err.Error()}}
}

// JSON renders the envelope. Pretty selects indented output for humans;
// compact is the default for agent consumption.
func (r Response) JSON(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(r, "", "  ")
	}
	return json.Marshal(r)
}

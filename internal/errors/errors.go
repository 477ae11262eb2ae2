package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes
// and HTTP error bodies.
type Code int

const (
	CodeSuccess        Code = 0
	CodeInternal       Code = 1
	CodeUsage          Code = 2
	CodeAuth           Code = 10
	CodeRateLimited    Code = 11
	CodeUnavailable    Code = 12
	CodeUnsupported    Code = 13
	CodeBlocked        Code = 16
	CodePlanGeneration Code = 20
	CodeDispatch       Code = 21
	CodeWallet         Code = 22
	CodeStorage        Code = 23
	CodeSigner         Code = 24
	CodeActionTimeout  Code = 25
	CodeActionPlan     Code = 26
	CodeActionSim      Code = 27
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeOf returns the snake_case error type used in envelopes and API bodies.
func TypeOf(err error) string {
	cErr, ok := As(err)
	if !ok {
		return "internal_error"
	}
	switch cErr.Code {
	case CodeUsage:
		return "validation_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "command_blocked"
	case CodePlanGeneration:
		return "plan_generation_error"
	case CodeDispatch:
		return "dispatch_error"
	case CodeWallet:
		return "wallet_error"
	case CodeStorage:
		return "storage_error"
	case CodeSigner:
		return "signer_error"
	case CodeActionTimeout:
		return "action_timeout"
	case CodeActionPlan, CodeActionSim:
		return "action_error"
	default:
		return "internal_error"
	}
}

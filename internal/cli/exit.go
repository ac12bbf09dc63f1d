package cli

import (
	"context"
	stderrors "errors"

	"github.com/matzehuels/blockflow/pkg/errors"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitRejected  = 3
	ExitInterrupt = 130
)

// ExitCode maps the error returned by the root command to a process exit
// code. Edits the flow refused, such as an invalid connection or an unknown
// node, exit with ExitRejected so scripts can tell them from I/O failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if stderrors.Is(err, context.Canceled) {
		return ExitInterrupt
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput:
		return ExitUsage
	case errors.ErrCodeInvalidConnection, errors.ErrCodeInvalidPayload, errors.ErrCodeInvalidState,
		errors.ErrCodeNotFound, errors.ErrCodeDuplicateID, errors.ErrCodeUnknownKind, errors.ErrCodeCorruptGraph:
		return ExitRejected
	default:
		return ExitFailure
	}
}

// ErrorLine formats err for the final line printed before exiting. Flow
// errors show their message and connection rejections their reason.
func ErrorLine(err error) string {
	msg := errors.UserMessage(err)
	if r := errors.ReasonOf(err); r != "" {
		return "Error (" + string(r) + "): " + msg
	}
	return "Error: " + msg
}

package status

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount means the caller asked for a payment request that can
	// never be valid (negative credit amount). Raised before anything touches
	// the network.
	ErrInvalidAmount = errors.New("payment: invalid credit amount")

	// ErrMissingNextAction means the remote system returned a payment without
	// the continuation instruction it is contractually required to send.
	ErrMissingNextAction = errors.New("payment: next action missing from response")

	// ErrSubmissionFailed means the initial submit call failed. Retrying with
	// the same idempotency key is always safe.
	ErrSubmissionFailed = errors.New("payment: submission failed")

	// ErrActionFailed means the host-side payment action reported failure or
	// raised.
	ErrActionFailed = errors.New("payment: action failed")
)

// GenericFailureMessage is shown when a failure carries no provider-supplied
// text. Raw error internals are never shown to users.
const GenericFailureMessage = "Payment failed. Please try again."

// RemoteError carries the code and message the remote booking API returned
// for a rejected call. Message is safe to show to the user.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote: %s", e.Message)
}

// FlowError is the single error shape the payment flow surfaces. Kind is one
// of the sentinels above; Message is the one human-readable string produced
// per failed attempt.
type FlowError struct {
	Kind    error
	Message string
	Err     error
}

func NewFlowError(kind error, message string, err error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Err: err}
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *FlowError) Unwrap() error {
	return e.Kind
}

// UserMessage returns the text to show the user, falling back to the generic
// message when nothing better is known.
func (e *FlowError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericFailureMessage
}

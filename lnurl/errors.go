package lnurl

import "fmt"

// Error taxonomy shared by the withdraw and pay engines. The HTTP layer maps
// these onto either the admin envelope error codes or the wallet-facing
// {"status":"ERROR"} response shape.

type validationError struct {
	message string
}

func NewValidationError(format string, args ...interface{}) error {
	return &validationError{message: fmt.Sprintf(format, args...)}
}

func (err *validationError) Error() string { return err.message }

func (err *validationError) Is(target error) bool {
	_, ok := target.(*validationError)
	return ok
}

func IsValidationError(err error) bool {
	_, ok := err.(*validationError)
	return ok
}

type notFoundError struct {
	message string
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &notFoundError{message: fmt.Sprintf(format, args...)}
}

func (err *notFoundError) Error() string { return err.message }

func (err *notFoundError) Is(target error) bool {
	_, ok := target.(*notFoundError)
	return ok
}

func IsNotFoundError(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

// protocolError is a wallet-facing semantic failure (expired voucher, unknown
// endpoint, amount outside bounds at claim time). Reason is rendered verbatim
// in the LNURL error response.
type protocolError struct {
	Reason string
}

func NewProtocolError(format string, args ...interface{}) error {
	return &protocolError{Reason: fmt.Sprintf(format, args...)}
}

func (err *protocolError) Error() string { return err.Reason }

func (err *protocolError) Is(target error) bool {
	_, ok := target.(*protocolError)
	return ok
}

func IsProtocolError(err error) bool {
	_, ok := err.(*protocolError)
	return ok
}

// conflictError signals a lost race on a conditional update. The caller may
// retry against fresh state but must not blindly resubmit.
type conflictError struct {
	message string
}

func NewConflictError(format string, args ...interface{}) error {
	return &conflictError{message: fmt.Sprintf(format, args...)}
}

func (err *conflictError) Error() string { return err.message }

func (err *conflictError) Is(target error) bool {
	_, ok := target.(*conflictError)
	return ok
}

func IsConflictError(err error) bool {
	_, ok := err.(*conflictError)
	return ok
}

// gatewayError wraps a failed call to an external collaborator (lightning
// backend or webhook receiver). Reconciliation records these and retries on
// the next pass instead of escalating.
type gatewayError struct {
	message string
	cause   error
}

func NewGatewayError(cause error, format string, args ...interface{}) error {
	return &gatewayError{message: fmt.Sprintf(format, args...), cause: cause}
}

func (err *gatewayError) Error() string {
	if err.cause != nil {
		return fmt.Sprintf("%s: %v", err.message, err.cause)
	}
	return err.message
}

func (err *gatewayError) Unwrap() error { return err.cause }

func (err *gatewayError) Is(target error) bool {
	_, ok := target.(*gatewayError)
	return ok
}

func IsGatewayError(err error) bool {
	_, ok := err.(*gatewayError)
	return ok
}

type encodingError struct {
	message string
}

func newEncodingError(format string, args ...interface{}) error {
	return &encodingError{message: fmt.Sprintf(format, args...)}
}

func (err *encodingError) Error() string {
	return "bech32 encoding failed: " + err.message
}

func IsEncodingError(err error) bool {
	_, ok := err.(*encodingError)
	return ok
}

type decodingError struct {
	message string
}

func newDecodingError(format string, args ...interface{}) error {
	return &decodingError{message: fmt.Sprintf(format, args...)}
}

func (err *decodingError) Error() string {
	return "bech32 decoding failed: " + err.message
}

func IsDecodingError(err error) bool {
	_, ok := err.(*decodingError)
	return ok
}

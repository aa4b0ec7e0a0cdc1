package model

import "errors"

var (
	ErrInvalidPayload         = errors.New("invalid payload")
	ErrInvalidGeometry        = errors.New("invalid geometry")
	ErrUnsupportedDocument    = errors.New("unsupported document")
	ErrMissingChequeInfo      = errors.New("payment succeeded without cheque info")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrTransport              = errors.New("transport error")
	ErrMalformedFrame         = errors.New("malformed frame")
	ErrUnknownEventType       = errors.New("unknown event type")
)

const defaultPaymentFailure = "payment was not completed"

// PaymentFailedError is a business-level payment rejection reported by the terminal.
type PaymentFailedError struct {
	Status    string
	SubStatus string
	Reason    string
}

func (e *PaymentFailedError) Error() string {
	if e.Reason == "" {
		return defaultPaymentFailure
	}
	return e.Reason
}

// Package gateway is the provider-neutral contract between the payment
// reconciler and concrete payment gateways.
package gateway

import (
	"context"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeIgnored is for intermediate notifications (e.g. "pending") that
	// must be acknowledged but carry no state change.
	OutcomeIgnored Outcome = "ignored"
)

type PaymentRequest struct {
	OrderID   string
	RequestID string
	Amount    int64
	OrderInfo string
	UserID    uuid.UUID
	LessonID  uuid.UUID
	ReturnURL string
	NotifyURL string
}

type PaymentResponse struct {
	PayURL     string
	ResultCode string
	Message    string
}

// Event is a verified, normalized gateway notification.
type Event struct {
	Provider   string
	OrderID    string
	RequestID  string
	TransID    string
	Amount     int64
	ResultCode string
	Message    string
	Outcome    Outcome
	// Method is the settlement channel: momo, card, bank or wallet.
	Method    string
	UserID    uuid.UUID
	LessonID  uuid.UUID
	Signature string
	Raw       []byte
}

type Adapter interface {
	Provider() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	// ParseNotification verifies the signature of raw before decoding anything
	// it trusts. A bad signature yields errors.ErrInvalidSignature.
	ParseNotification(ctx context.Context, raw []byte) (*Event, error)
}

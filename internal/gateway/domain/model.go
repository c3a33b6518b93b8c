package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransport marks an inconclusive gateway call: the gateway was
	// unreachable, timed out, answered non-2xx, or sent an undecodable body.
	ErrTransport      = errors.New("gateway_transport_error")
	ErrInvalidRequest = errors.New("gateway_invalid_request")
	ErrNotConfigured  = errors.New("gateway_not_configured")
)

type PushRequest struct {
	Amount            float64 `json:"amount"`
	PhoneNumber       string  `json:"phone_number"`
	ExternalReference string  `json:"external_reference"`
	CallbackURL       string  `json:"callback_url,omitempty"`
}

type PushResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

type Customer struct {
	Email     string `json:"customerEmail"`
	FirstName string `json:"customerFirstName"`
	LastName  string `json:"customerLastName"`
	Phone     string `json:"phoneNumber,omitempty"`
}

type RedirectRequest struct {
	Amount            float64  `json:"amount"`
	Currency          string   `json:"currency"`
	Description       string   `json:"description"`
	Customer          Customer `json:"customer"`
	CountryCode       string   `json:"countryCode"`
	MerchantReference string   `json:"merchantReference,omitempty"`
}

type RedirectResult struct {
	OrderTrackingID   string `json:"orderTrackingId"`
	RedirectURL       string `json:"redirectUrl"`
	MerchantReference string `json:"merchantReference,omitempty"`
}

type StatusData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusResult is the normalized answer of a status lookup. Success reports
// whether the gateway found the transaction, not whether it was paid.
type StatusResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    *StatusData `json:"data,omitempty"`
}

// PushGateway initiates mobile-money push payments and looks them up by the
// caller's external reference.
type PushGateway interface {
	InitiatePush(ctx context.Context, req PushRequest) (PushResult, error)
	QueryByReference(ctx context.Context, externalReference string) (StatusResult, error)
}

// RedirectGateway initiates hosted-checkout payments and verifies them by
// tracking id.
type RedirectGateway interface {
	InitiateRedirect(ctx context.Context, req RedirectRequest) (RedirectResult, error)
	Verify(ctx context.Context, orderTrackingID string) (StatusResult, error)
}

// Client is the full gateway surface used by the donation flow.
type Client interface {
	PushGateway
	RedirectGateway
}

// TransportError wraps cause so that errors.Is(err, ErrTransport) holds.
func TransportError(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrTransport)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransport, cause)
}

func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

package domain

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/poller"
)

var (
	ErrAttemptInFlight    = errors.New("donation_attempt_in_flight")
	ErrAttemptNotFound    = errors.New("donation_attempt_not_found")
	ErrInitiationFailed   = errors.New("donation_initiation_failed")
	ErrNotPolling         = errors.New("donation_not_polling")
	ErrRetryNotAllowed    = errors.New("donation_retry_not_allowed")
	ErrReceiptUnavailable = errors.New("donation_receipt_unavailable")
	ErrCoordinatorClosed  = errors.New("donation_coordinator_closed")
)

const MinimumAmount = 10

const (
	MessageMinimumAmount = "Minimum donation is KES 10"
	MessageNameRequired  = "Name is required"
	MessageInvalidEmail  = "Valid email is required"
	MessageInvalidPhone  = "Valid phone number is required (254XXXXXXXXX)"
	MessageInvalidMethod = "Select a payment method"
	MessageInitiation    = "Payment initiation failed. Please try again."
)

var (
	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	phonePattern = regexp.MustCompile(`^254\d{9}$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// State is where an attempt is in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateSubmitting      State = "submitting"
	StateAwaitingGateway State = "awaiting_gateway"
	StatePolling         State = "polling"
	StateCommitted       State = "committed"
	StateDiscarded       State = "discarded"
)

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateDiscarded
}

// InFlight reports whether a second submission by the same donor must wait.
func (s State) InFlight() bool {
	return s == StateSubmitting || s == StateAwaitingGateway || s == StatePolling
}

type Form struct {
	ArtistID      string                     `json:"artistId"`
	Amount        float64                    `json:"amount"`
	DonorName     string                     `json:"donorName"`
	DonorEmail    string                     `json:"donorEmail"`
	DonorPhone    string                     `json:"donorPhone,omitempty"`
	Message       string                     `json:"message,omitempty"`
	PaymentMethod ledgerdomain.PaymentMethod `json:"paymentMethod"`
}

// ValidationErrors maps a form field to its message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// Validate checks a form without side effects. It returns nil when the form
// is acceptable.
func Validate(f Form) ValidationErrors {
	errs := ValidationErrors{}
	if math.IsNaN(f.Amount) || math.IsInf(f.Amount, 0) || f.Amount < MinimumAmount {
		errs["amount"] = MessageMinimumAmount
	}
	if strings.TrimSpace(f.DonorName) == "" {
		errs["donorName"] = MessageNameRequired
	}
	if !emailPattern.MatchString(strings.TrimSpace(f.DonorEmail)) {
		errs["donorEmail"] = MessageInvalidEmail
	}
	switch f.PaymentMethod {
	case ledgerdomain.PaymentMpesa:
		if !phonePattern.MatchString(NormalizePhone(f.DonorPhone)) {
			errs["donorPhone"] = MessageInvalidPhone
		}
	case ledgerdomain.PaymentPesapal:
	default:
		errs["paymentMethod"] = MessageInvalidMethod
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AttemptView is the externally visible state of one donation attempt.
type AttemptView struct {
	ID            string                `json:"id"`
	State         State                 `json:"state"`
	PaymentStatus poller.Status         `json:"paymentStatus,omitempty"`
	Origin        poller.Origin         `json:"origin,omitempty"`
	Message       string                `json:"message,omitempty"`
	RedirectURL   string                `json:"redirectUrl,omitempty"`
	Donation      ledgerdomain.Donation `json:"donation"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

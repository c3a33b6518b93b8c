package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Franc-dev/donate-artist/internal/authorization"
	battledomain "github.com/Franc-dev/donate-artist/internal/battle/domain"
	donationdomain "github.com/Franc-dev/donate-artist/internal/donation/domain"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	ledgerdomain "github.com/Franc-dev/donate-artist/internal/ledger/domain"
	"github.com/Franc-dev/donate-artist/internal/ledgersync"
	paymentdomain "github.com/Franc-dev/donate-artist/internal/payment/domain"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var formErrs donationdomain.ValidationErrors
	if errors.As(err, &formErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldErrors(formErrs),
		}
	}

	if isValidationError(err) {
		code := err.Error()
		if errors.Is(err, ErrInvalidRequest) {
			code = "invalid_request"
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, donationdomain.ErrAttemptInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a donation is already in progress for this donor",
		}
	case errors.Is(err, ledgerdomain.ErrVoteInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a vote is already being recorded",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, donationdomain.ErrNotPolling),
		errors.Is(err, donationdomain.ErrRetryNotAllowed),
		errors.Is(err, donationdomain.ErrReceiptUnavailable),
		errors.Is(err, battledomain.ErrNoActiveBattle),
		errors.Is(err, ledgersync.ErrRunInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, donationdomain.ErrInitiationFailed),
		gatewaydomain.IsTransport(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_initiation_failed",
			Message: donationdomain.MessageInitiation,
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, donationdomain.ErrCoordinatorClosed),
		errors.Is(err, gatewaydomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged with a failed
// request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func fieldErrors(errs donationdomain.ValidationErrors) []ValidationError {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]ValidationError, 0, len(fields))
	for _, field := range fields {
		out = append(out, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: errs[field],
		})
	}
	return out
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, gatewaydomain.ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrMissingReference),
		errors.Is(err, ledgerdomain.ErrInvalidVoteType),
		errors.Is(err, ledgerdomain.ErrInvalidArtist),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, battledomain.ErrArtistNotFound),
		errors.Is(err, battledomain.ErrArtistNotInBattle),
		errors.Is(err, userdomain.ErrInvalidName),
		errors.Is(err, userdomain.ErrInvalidEmail),
		errors.Is(err, userdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authorization.ErrDisabled),
		errors.Is(err, donationdomain.ErrAttemptNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrMissingReference):
		return "reference"
	case errors.Is(err, ledgerdomain.ErrInvalidVoteType):
		return "type"
	case errors.Is(err, ledgerdomain.ErrInvalidArtist),
		errors.Is(err, battledomain.ErrArtistNotFound),
		errors.Is(err, battledomain.ErrArtistNotInBattle):
		return "artistId"
	case errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, userdomain.ErrInvalidID):
		return "userId"
	case errors.Is(err, ledgerdomain.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, userdomain.ErrInvalidName):
		return "name"
	case errors.Is(err, userdomain.ErrInvalidEmail):
		return "email"
	default:
		return "request"
	}
}

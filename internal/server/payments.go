package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	"github.com/Franc-dev/donate-artist/internal/observability/logger"
	"github.com/Franc-dev/donate-artist/internal/payment/classifier"
	paymentdomain "github.com/Franc-dev/donate-artist/internal/payment/domain"
)

const maxCallbackBody = 64 << 10

// InitiatePush passes a raw STK push request through to the gateway.
func (s *Server) InitiatePush(c *gin.Context) {
	var req gatewaydomain.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.ExternalReference = strings.TrimSpace(req.ExternalReference)
	switch {
	case req.Amount <= 0:
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	case req.PhoneNumber == "":
		AbortWithError(c, newValidationError("phone_number", "required", "phone number is required"))
		return
	case req.ExternalReference == "":
		AbortWithError(c, newValidationError("external_reference", "required", "external reference is required"))
		return
	}
	setPaymentReference(c, req.ExternalReference)

	res, err := s.gateway.InitiatePush(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// InitiateRedirect passes a raw hosted-checkout request through to the
// gateway.
func (s *Server) InitiateRedirect(c *gin.Context) {
	var req gatewaydomain.RedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}
	if strings.TrimSpace(req.Customer.Email) == "" {
		AbortWithError(c, newValidationError("customerEmail", "required", "customer email is required"))
		return
	}
	if req.Currency == "" {
		req.Currency = s.cfg.Pesapal.Currency
	}
	if req.CountryCode == "" {
		req.CountryCode = s.cfg.Pesapal.CountryCode
	}
	setPaymentReference(c, req.MerchantReference)

	res, err := s.gateway.InitiateRedirect(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) VerifyRedirect(c *gin.Context) {
	trackingID := strings.TrimSpace(c.Query("orderTrackingId"))
	if trackingID == "" {
		AbortWithError(c, newValidationError("orderTrackingId", "required", "Order tracking ID is required"))
		return
	}
	setPaymentReference(c, trackingID)

	res, err := s.gateway.Verify(c.Request.Context(), trackingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckStatus reports the current classification of a payment reference.
func (s *Server) CheckStatus(c *gin.Context) {
	reference := strings.TrimSpace(c.Query("reference"))
	setPaymentReference(c, reference)

	report, err := s.status.Check(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// StreamPaymentStatus relays callback-driven status events for a reference
// until a terminal status arrives or the client goes away.
func (s *Server) StreamPaymentStatus(c *gin.Context) {
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		AbortWithError(c, paymentdomain.ErrMissingReference)
		return
	}
	if s.statusBus == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	setPaymentReference(c, reference)

	ctx := c.Request.Context()
	sub, err := s.statusBus.Subscribe(ctx, reference)
	if err != nil {
		logger.FromContext(ctx).Warn("payment status subscribe failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer sub.Close()

	flusher, ok := startEventStream(c)
	if !ok {
		return
	}
	writer := c.Writer
	if err := writeEvent(writer, "", gin.H{"status": "connected", "reference": reference}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeEvent(writer, "", event); err != nil {
				return
			}
			flusher.Flush()
			if event.Status != string(classifier.BucketPending) {
				return
			}
		case <-heartbeat.C:
			if err := writeHeartbeat(writer); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// PaymentCallback ingests a gateway webhook. The gateway always gets a 200
// acknowledgement so it stops retrying.
func (s *Server) PaymentCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil && !errors.Is(err, io.EOF) {
		logger.FromContext(c.Request.Context()).Warn("payment callback body read failed", zap.Error(err))
	}

	ack := s.callbacks.Ingest(c.Request.Context(), body, c.Request.Header)
	setPaymentReference(c, ack.ExternalReference)
	c.JSON(http.StatusOK, ack)
}

package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
	"github.com/Franc-dev/donate-artist/internal/observability/tracing"
)

const (
	providerPayHero = "payhero"
	providerPesapal = "pesapal"
)

// Client routes push calls to PayHero and redirect calls to Pesapal, wrapping
// each call in a span and a request metric.
type Client struct {
	push     gatewaydomain.PushGateway
	redirect gatewaydomain.RedirectGateway
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	log      *zap.Logger
}

func NewClient(push gatewaydomain.PushGateway, redirect gatewaydomain.RedirectGateway, m *metrics.Metrics, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		push:     push,
		redirect: redirect,
		metrics:  m,
		tracer:   otel.Tracer("donate-artist/gateway"),
		log:      log.Named("gateway"),
	}
}

func (c *Client) InitiatePush(ctx context.Context, req gatewaydomain.PushRequest) (gatewaydomain.PushResult, error) {
	ctx, finish := c.start(ctx, providerPayHero, "initiate_push", attribute.String("payment.reference", req.ExternalReference))
	res, err := c.push.InitiatePush(ctx, req)
	finish(err)
	return res, err
}

func (c *Client) QueryByReference(ctx context.Context, externalReference string) (gatewaydomain.StatusResult, error) {
	ctx, finish := c.start(ctx, providerPayHero, "query_by_reference", attribute.String("payment.reference", externalReference))
	res, err := c.push.QueryByReference(ctx, externalReference)
	finish(err)
	return res, err
}

func (c *Client) InitiateRedirect(ctx context.Context, req gatewaydomain.RedirectRequest) (gatewaydomain.RedirectResult, error) {
	ctx, finish := c.start(ctx, providerPesapal, "initiate_redirect", attribute.String("payment.reference", req.MerchantReference))
	res, err := c.redirect.InitiateRedirect(ctx, req)
	finish(err)
	return res, err
}

func (c *Client) Verify(ctx context.Context, orderTrackingID string) (gatewaydomain.StatusResult, error) {
	ctx, finish := c.start(ctx, providerPesapal, "verify", attribute.String("payment.order_tracking_id", orderTrackingID))
	res, err := c.redirect.Verify(ctx, orderTrackingID)
	finish(err)
	return res, err
}

func (c *Client) start(ctx context.Context, provider, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	attrs = append(attrs,
		attribute.String("gateway.provider", provider),
		attribute.String("gateway.operation", operation),
	)
	ctx, span := c.tracer.Start(ctx, "gateway."+operation, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(tracing.SafeAttributes(attrs...)...))

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if gatewaydomain.IsTransport(err) {
				outcome = "transport_error"
			}
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, outcome)
			c.log.Warn("gateway call failed",
				zap.String("provider", provider),
				zap.String("operation", operation),
				zap.Error(err),
			)
		}
		span.End()
		c.metrics.RecordGatewayRequest(ctx, provider, operation, outcome, time.Since(started))
	}
}

var _ gatewaydomain.Client = (*Client)(nil)

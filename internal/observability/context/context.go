package context

import stdctx "context"

type (
	requestIDKey        struct{}
	paymentReferenceKey struct{}
)

// WithRequestID stores the inbound request id for log and trace correlation.
func WithRequestID(ctx stdctx.Context, requestID string) stdctx.Context {
	if requestID == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdctx.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithPaymentReference tags the context with the donation or gateway
// reference being worked on.
func WithPaymentReference(ctx stdctx.Context, reference string) stdctx.Context {
	if reference == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, paymentReferenceKey{}, reference)
}

func PaymentReferenceFromContext(ctx stdctx.Context) string {
	return stringValue(ctx, paymentReferenceKey{})
}

func stringValue(ctx stdctx.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

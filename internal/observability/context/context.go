package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type orderIDKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithOrderID tags the context with the order under recalculation.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	orderID = strings.TrimSpace(orderID)
	if ctx == nil || orderID == "" {
		return ctx
	}
	return context.WithValue(ctx, orderIDKey{}, orderID)
}

func OrderIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(orderIDKey{}).(string); ok {
		return v
	}
	return ""
}

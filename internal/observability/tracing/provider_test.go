package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("order.id", "1"),
		attribute.String("user.email", "a@example.com"),
		attribute.Int("http.status_code", 200),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("user.email"), attr.Key)
	}
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := fmt.Errorf("load order: %w", errors.New("SELECT * FROM orders WHERE email = 'x'"))
	assert.EqualError(t, SafeError(err), "load order")
	assert.Nil(t, SafeError(nil))
}

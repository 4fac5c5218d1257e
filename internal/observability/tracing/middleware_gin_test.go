package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestGinMiddlewareContinuesBareTraceHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())

	var traceID string
	r.GET("/v1/promotions", func(c *gin.Context) {
		traceID = trace.SpanContextFromContext(c.Request.Context()).TraceID().String()
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/promotions", nil)
	req.Header.Set("X-Trace-Id", "4bf92f3577b34da6a3ce929d0e0e4736")
	req.Header.Set("X-Span-Id", "00f067aa0ba902b7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
}

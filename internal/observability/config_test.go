package observability

import (
	"testing"

	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsAppConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  " production ",
		AppVersion:   "1.2.3",
		LogLevel:     "info",
		OtelEnabled:  true,
		OTLPEndpoint: "collector:4317",
		OTLPProtocol: "grpc",
	})

	assert.Equal(t, "promotions", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "Local"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}

package zaplogger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

func TestLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := New(zap.New(core), observability.F("service", "order-service"))

	scoped := log.With(observability.F("request_id", "req-1"))
	scoped.Info("use_case_done", observability.F("outcome", "success"))
	scoped.Error("event_relay_failed", observability.F("error", errors.New("broker down")))
	log.Debug("plain")

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	assert.Equal(t, "use_case_done", entries[0].Message)
	assert.Equal(t, "order-service", first["service"])
	assert.Equal(t, "req-1", first["request_id"])
	assert.Equal(t, "success", first["outcome"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "broker down", entries[1].ContextMap()["error"])

	assert.NotContains(t, entries[2].ContextMap(), "request_id")
}

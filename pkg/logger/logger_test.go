package logger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWithConfig_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := NewWithConfig(Config{
		Level:          "info",
		Format:         "json",
		OutputPath:     path,
		ServiceName:    "svc",
		ServiceVersion: "1.2.3",
		Environment:    "test",
	})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("hello", zap.String("k", "v"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "svc", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "v", entry["k"])
}

func TestNewWithConfig_RejectsUnknownSettings(t *testing.T) {
	_, err := NewWithConfig(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = NewWithConfig(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"", zapcore.InfoLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("plain")

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	WithContext(ctx, base).Info("tagged")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, map[string]any{"request_id": "req-1", "correlation_id": "corr-1"}, entries[1].ContextMap())
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var requestID, correlationID string
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		requestID = GetRequestID(c.Request.Context())
		correlationID = GetCorrelationID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("generates ids", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, requestID)
		assert.Equal(t, requestID, correlationID)
		assert.Equal(t, correlationID, w.Header().Get(CorrelationIDHeader))
	})

	t.Run("reuses incoming correlation id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, "upstream-7")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "upstream-7", correlationID)
		assert.NotEqual(t, requestID, correlationID)
		assert.Equal(t, "upstream-7", w.Header().Get(CorrelationIDHeader))
	})

	t.Run("ignores oversized correlation id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, strings.Repeat("x", 129))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, requestID, correlationID)
	})
}

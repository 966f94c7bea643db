package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log))
	r.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/bad", func(c *gin.Context) { c.JSON(http.StatusBadRequest, gin.H{"error": "bad"}) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRouter(zap.New(core))

	tests := []struct {
		name    string
		path    string
		status  int
		level   zapcore.Level
		message string
	}{
		{"success logs at debug", "/ok", http.StatusOK, zapcore.DebugLevel, "Request handled"},
		{"client error logs at warn", "/bad", http.StatusBadRequest, zapcore.WarnLevel, "Request rejected"},
		{"unknown route logs at warn", "/missing", http.StatusNotFound, zapcore.WarnLevel, "Request rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.TakeAll()

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, w.Code)
			entries := logs.FilterMessage(tt.message).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.path, entries[0].ContextMap()["path"])
		})
	}
}

func TestRequestLogger_Metrics(t *testing.T) {
	r := newRouter(zap.NewNop())

	okBefore := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ok", "200"))
	missBefore := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ok", "200")))
	assert.Equal(t, missBefore+1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := newRouter(zap.New(core))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("Panic while handling request").Len())
}

package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notify-service/internal/auth"
	"notify-service/internal/middleware"
	"notify-service/internal/mocks"
	"notify-service/internal/telemetry"
)

type fakeDispatcher struct{ running bool }

func (f fakeDispatcher) Running() bool { return f.running }

func setupRouter(t *testing.T, deps RouterDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "good").Return(auth.Principal{ID: 4}, nil)
	verifier.On("Verify", mock.Anything, mock.Anything).Return(nil, auth.ErrInvalidToken)

	deps.ServiceName = "notify-service"
	deps.Verifier = verifier
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if deps.Events == nil {
		deps.Events = func(c *gin.Context) {
			principal, _ := middleware.PrincipalFromContext(c)
			c.JSON(http.StatusOK, gin.H{"user_id": principal.ID})
		}
	}
	return NewRouter(deps)
}

func get(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIndexServesEventSourcePage(t *testing.T) {
	router := setupRouter(t, RouterDeps{})

	rec := get(router, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "new EventSource(")
}

func TestHealthzReflectsDispatcher(t *testing.T) {
	rec := get(setupRouter(t, RouterDeps{Dispatcher: fakeDispatcher{running: true}}), "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","dispatcher":"running"}`, rec.Body.String())

	rec = get(setupRouter(t, RouterDeps{Dispatcher: fakeDispatcher{}}), "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","dispatcher":"stopped"}`, rec.Body.String())
}

func TestMetricsExposed(t *testing.T) {
	router := setupRouter(t, RouterDeps{})
	get(router, "/healthz", "")

	rec := get(router, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notify_http_requests_total")
}

func TestEventsRequiresAuth(t *testing.T) {
	router := setupRouter(t, RouterDeps{})

	assert.Equal(t, http.StatusUnauthorized, get(router, "/events", "").Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/events", "bad").Code)

	rec := get(router, "/events", "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":4}`, rec.Body.String())
}

func TestDebugRoutes(t *testing.T) {
	rec := get(setupRouter(t, RouterDeps{}), "/debug/audit-test", "good")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	publisher := new(mocks.EventPublisherMock)
	publisher.On("Publish", mock.Anything, "audit.notify", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.UserID != nil && *env.UserID == "4" && env.RequestID != ""
	})).Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.notify", "notify-service", "test", slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := setupRouter(t, RouterDeps{Audit: emitter, Debug: true})
	assert.Equal(t, http.StatusUnauthorized, get(router, "/debug/audit-test", "").Code)

	rec = get(router, "/debug/audit-test", "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

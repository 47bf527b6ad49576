package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

type recordingLogger struct {
	mu       sync.Mutex
	infoMsgs []string
	errMsgs  []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {}
func (l *recordingLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoMsgs = append(l.infoMsgs, msg)
}
func (l *recordingLogger) Warn(msg string, args ...any) {}
func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errMsgs = append(l.errMsgs, msg)
}
func (l *recordingLogger) Fatal(msg string, args ...any)  {}
func (l *recordingLogger) With(args ...any) logger.Logger { return l }

func newTestRouter(log logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(log))
	router.Use(ErrorHandler(log))
	return router
}

func TestErrorHandlerMapsDomainErrors(t *testing.T) {
	log := &recordingLogger{}
	router := newTestRouter(log)
	router.GET("/missing", func(c *gin.Context) {
		c.Error(apperrors.ErrRoomNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"room not found"}`, w.Body.String())
	// Клиентские ошибки в Error-лог не попадают
	assert.Empty(t, log.errMsgs)
}

func TestErrorHandlerLogsServerErrors(t *testing.T) {
	log := &recordingLogger{}
	router := newTestRouter(log)
	router.GET("/boom", func(c *gin.Context) {
		c.Error(errors.New("pool exhausted"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, log.errMsgs, 1)
	assert.Equal(t, "Request failed", log.errMsgs[0])
}

func TestRequestLoggerRecordsEveryRequest(t *testing.T) {
	log := &recordingLogger{}
	router := newTestRouter(log)
	router.GET("/ok", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok?limit=5", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, log.infoMsgs, 1)
	assert.Equal(t, "HTTP request", log.infoMsgs[0])
}

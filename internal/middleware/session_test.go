package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type staticTokens map[string]string

func (s staticTokens) ParseToken(token string) (string, error) {
	if sid, ok := s[token]; ok {
		return sid, nil
	}
	return "", errors.New("bad token")
}

func newSessionRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CustomLoggerMiddleware(), SessionMiddleware(staticTokens{"good": "from-token"}))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})
	return r
}

func TestSessionMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "session header", headers: map[string]string{"sessionId": "abc"}, wantStatus: http.StatusOK, wantBody: "abc"},
		{name: "bearer token", headers: map[string]string{"Authorization": "Bearer good"}, wantStatus: http.StatusOK, wantBody: "from-token"},
		{name: "token wins over header", headers: map[string]string{"Authorization": "Bearer good", "sessionId": "abc"}, wantStatus: http.StatusOK, wantBody: "from-token"},
		{name: "invalid token", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized},
		{name: "malformed authorization", headers: map[string]string{"Authorization": "Basic x"}, wantStatus: http.StatusUnauthorized},
		{name: "no session", wantStatus: http.StatusUnauthorized},
	}

	r := newSessionRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

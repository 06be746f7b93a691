package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func newAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("secret"))))
	r.GET("/set", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(SessionUserKey, "admin")
		_ = s.Save()
		c.Status(http.StatusNoContent)
	})
	r.GET("/private", RequireLogin("/login"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestRequireLogin(t *testing.T) {
	r := newAuthEngine()

	tests := []struct {
		name     string
		accept   string
		wantCode int
		wantLoc  string
	}{
		{"browser", "text/html,application/xhtml+xml", http.StatusFound, "/login"},
		{"poller", "application/json", http.StatusUnauthorized, ""},
		{"no accept header", "", http.StatusFound, "/login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/private", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if loc := w.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/set", nil))
	req := httptest.NewRequest("GET", "/private", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("logged-in request: status = %d body = %q", w.Code, w.Body.String())
	}
}

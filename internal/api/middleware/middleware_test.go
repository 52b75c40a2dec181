package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims accessClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func newRouter(cfg AuthConfig, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWTAuth(cfg)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("role")})
	})
	r.GET("/me", handlers...)
	return r
}

func userClaims(sub string, role string) accessClaims {
	c := accessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "medivoice-auth",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	if role != "" {
		c.AppMetadata = map[string]any{"role": role}
	}
	return c
}

func TestJWTAuth(t *testing.T) {
	cfg := AuthConfig{Secret: testSecret, Issuer: "medivoice-auth", Audience: "authenticated"}

	expired := userClaims("u1", "")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSub := userClaims("", "")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + signToken(t, userClaims("u1", ""), testSecret), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, userClaims("u1", ""), "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, expired, testSecret), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, noSub, testSecret), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newRouter(cfg).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestJWTAuth_IssuerAndAudience(t *testing.T) {
	tok := signToken(t, userClaims("u1", ""), testSecret)

	for _, cfg := range []AuthConfig{
		{Secret: testSecret, Issuer: "someone-else"},
		{Secret: testSecret, Audience: "service_role"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		newRouter(cfg).ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("cfg=%+v status=%d", cfg, w.Code)
		}
	}
}

func TestJWTAuth_MissingSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	newRouter(AuthConfig{}).ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestJWTAuth_WebsocketQueryToken(t *testing.T) {
	tok := signToken(t, userClaims("u1", ""), testSecret)
	cfg := AuthConfig{Secret: testSecret}

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+tok, nil)
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	newRouter(cfg).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upgrade with query token: status=%d", w.Code)
	}

	plain := httptest.NewRequest(http.MethodGet, "/me?access_token="+tok, nil)
	w = httptest.NewRecorder()
	newRouter(cfg).ServeHTTP(w, plain)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("query token outside upgrade: status=%d", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	cfg := AuthConfig{Secret: testSecret}
	r := newRouter(cfg, RequireAdmin())

	for _, tc := range []struct {
		role string
		want int
	}{
		{"admin", http.StatusOK},
		{"", http.StatusForbidden},
		{"doctor", http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, userClaims("u1", tc.role), testSecret))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("role=%q status=%d want %d", tc.role, w.Code, tc.want)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(log))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/ping", ok)
	r.GET("/session/:session_id", ok)
	r.GET("/ws/session/:session_id", ok)

	serve := func(req *http.Request) *logrus.Entry {
		t.Helper()
		hook.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Header().Get("X-Request-Id") == "" {
			t.Fatal("missing X-Request-Id")
		}
		return hook.LastEntry()
	}

	e := serve(httptest.NewRequest(http.MethodGet, "/session/s1", nil))
	if e == nil || e.Message != "request" || e.Data["session_id"] != "s1" {
		t.Fatalf("session request entry = %+v", e)
	}
	if _, ok := e.Data["latency_ms"]; !ok {
		t.Fatal("latency_ms not logged")
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/session/s2", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	e = serve(req)
	if e == nil || e.Message != "call socket closed" || e.Data["session_id"] != "s2" {
		t.Fatalf("call socket entry = %+v", e)
	}
	if _, ok := e.Data["call_seconds"]; !ok {
		t.Fatal("call_seconds not logged")
	}

	if e := serve(httptest.NewRequest(http.MethodGet, "/ping", nil)); e != nil {
		t.Fatalf("ping logged at %s", e.Level)
	}
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("hunter22", "test-secret")
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestPasswordHashing(t *testing.T) {
	svc := newTestService(t)

	if err := bcrypt.CompareHashAndPassword(svc.passwordHash, []byte("hunter22")); err != nil {
		t.Error("password comparison failed for correct password")
	}

	if err := bcrypt.CompareHashAndPassword(svc.passwordHash, []byte("wrongpassword")); err == nil {
		t.Error("password comparison should fail for wrong password")
	}
}

func TestNewService_NotConfigured(t *testing.T) {
	if _, err := NewService("", "secret"); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewService("pw", ""); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLoginAndValidate(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Login(context.Background(), "nope"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	resp, err := svc.Login(context.Background(), "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != int(AccessTokenExpiry.Seconds()) {
		t.Errorf("unexpected response %+v", resp)
	}

	claims, err := svc.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != OperatorSubject {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.Login(context.Background(), "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	other, err := NewService("hunter22", "other-secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.ValidateAccessToken(resp.AccessToken); err != ErrInvalidToken {
		t.Errorf("wrong secret: expected ErrInvalidToken, got %v", err)
	}

	if _, err := svc.ValidateAccessToken("garbage"); err != ErrInvalidToken {
		t.Errorf("garbage: expected ErrInvalidToken, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(AccessTokenExpiry + time.Hour) }
	if _, err := svc.ValidateAccessToken(resp.AccessToken); err != ErrTokenExpired {
		t.Errorf("expired: expected ErrTokenExpired, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.Login(context.Background(), "hunter22")
	if err != nil {
		t.Fatal(err)
	}

	var sawClaims bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawClaims = GetClaimsFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(svc)(next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + resp.AccessToken, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawClaims = false
			req := httptest.NewRequest(http.MethodGet, "/api/v1/downloads", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if sawClaims != (tt.want == http.StatusNoContent) {
				t.Errorf("claims in context = %v", sawClaims)
			}
		})
	}
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	Middleware(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIssueTokenHandler(t *testing.T) {
	h := apperrors.HandleFunc(NewHandlers(newTestService(t)).IssueToken)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"password":"hunter22"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "accessToken") {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"password":"x"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), apperrors.CodeInvalidCredentials) {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", rec.Code)
	}
}

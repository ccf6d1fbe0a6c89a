package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func decodeAuthError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuth_AllowsAdmin(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]any{
				"role":  []any{"user", "Admin"},
				"email": "owner@furnishop.example",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || !identity.IsAdmin() || identity.PrimaryRole() != RoleAdmin {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if identity.Email != "owner@furnishop.example" {
			t.Fatalf("unexpected email %s", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || !handlerCalled {
		t.Fatalf("expected handler to run, got %d", rr.Code)
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireFirebaseAuth_RejectsMissingRole(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-456", Claims: map[string]any{}}}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for shoppers")
	}))

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set("Authorization", "Bearer shopper")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden || decodeAuthError(t, rr) != "insufficient_role" {
		t.Fatalf("expected 403 insufficient_role, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequireFirebaseAuth_ExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired})
	handler := authn.RequireFirebaseAuth(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || decodeAuthError(t, rr) != "token_expired" {
		t.Fatalf("expected 401 token_expired, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestOptionalFirebaseAuth(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-789", Claims: map[string]any{}}}
	authn := NewAuthenticator(verifier)

	type seen struct {
		uid   string
		guest string
	}
	var got seen
	handler := authn.OptionalFirebaseAuth()(RequireShopper(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = seen{guest: GuestTokenFromContext(r.Context())}
		if identity, ok := IdentityFromContext(r.Context()); ok {
			got.uid = identity.UID
		}
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name    string
		bearer  string
		guest   string
		status  int
		want    seen
		errCode string
	}{
		{name: "guest only", guest: "guest_0123456789abcdef", status: http.StatusNoContent, want: seen{guest: "guest_0123456789abcdef"}},
		{name: "user with guest token", bearer: "Bearer tok", guest: "guest_0123456789abcdef", status: http.StatusNoContent, want: seen{uid: "uid-789", guest: "guest_0123456789abcdef"}},
		{name: "user only", bearer: "Bearer tok", status: http.StatusNoContent, want: seen{uid: "uid-789"}},
		{name: "anonymous", status: http.StatusUnauthorized, errCode: "unauthenticated"},
		{name: "malformed guest token", guest: "short", status: http.StatusBadRequest, errCode: "invalid_cart_token"},
		{name: "malformed bearer", bearer: "Basic abc", status: http.StatusUnauthorized, errCode: "unauthenticated"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got = seen{}
			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			if tc.bearer != "" {
				req.Header.Set("Authorization", tc.bearer)
			}
			if tc.guest != "" {
				req.Header.Set(GuestTokenHeader, tc.guest)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.errCode != "" {
				if code := decodeAuthError(t, rr); code != tc.errCode {
					t.Fatalf("expected %s, got %s", tc.errCode, code)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestOptionalFirebaseAuth_InvalidTokenIsNotDowngraded(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenInvalid})
	handler := authn.OptionalFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("an invalid token must not fall back to guest access")
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer forged")
	req.Header.Set(GuestTokenHeader, "guest_0123456789abcdef")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || decodeAuthError(t, rr) != "invalid_token" {
		t.Fatalf("expected 401 invalid_token, got %d %s", rr.Code, rr.Body.String())
	}
}

package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow/api/internal/auth"
	"leadflow/api/internal/util"
)

func authedRequest(t *testing.T, svc *Service, method, path string, body []byte) *http.Request {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), "usr_test", "Tester", util.NewID("jti"), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSignUpAndSignInContract(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	signup := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
		bytes.NewBufferString(`{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`))
	signup.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, signup)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if token, _ := payload["accessToken"].(string); token == "" {
		t.Fatalf("expected accessToken")
	}
	if refresh, _ := payload["refreshToken"].(string); refresh == "" {
		t.Fatalf("expected refreshToken")
	}
	if payload["userName"] != "Avery" {
		t.Fatalf("expected userName Avery, got %v", payload["userName"])
	}

	signin := httptest.NewRequest(http.MethodPost, "/api/auth/signin",
		bytes.NewBufferString(`{"email":"avery@example.com","password":"hunter2hunter2"}`))
	signin.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, signin)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	signup := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
		bytes.NewBufferString(`{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`))
	signup.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(httptest.NewRecorder(), signup)

	signin := httptest.NewRequest(http.MethodPost, "/api/auth/signin",
		bytes.NewBufferString(`{"email":"avery@example.com","password":"wrong-password"}`))
	signin.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, signin)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", payload["code"])
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	body := `{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`
	first := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBufferString(body))
	first.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBufferString(body))
	second.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, second)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestProtectedRouteWithoutBearerReturnsUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProtectedRouteWithExpiredBearerReturnsUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), "usr_test", "Tester", "jti-expired", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	signup := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
		bytes.NewBufferString(`{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`))
	signup.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, signup)

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	refresh, _ := payload["refreshToken"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh",
		bytes.NewBufferString(`{"refreshToken":"`+refresh+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// Replaying the old token fails.
	replay := httptest.NewRequest(http.MethodPost, "/api/auth/refresh",
		bytes.NewBufferString(`{"refreshToken":"`+refresh+`"}`))
	replay.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, replay)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 on replay, got %d", rr.Code)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeStore{}, seededGateway())
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["authenticated"] != false {
		t.Fatalf("expected authenticated=false, got %v", payload["authenticated"])
	}
}

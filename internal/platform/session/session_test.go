package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager([]byte("0123456789abcdef0123456789abcdef"), nil, false, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func TestResolveMintsSignedCookie(t *testing.T) {
	manager := newTestManager(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/polls/x/vote", nil)

	sessionID, minted, err := manager.Resolve(rec, req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !minted || sessionID == "" {
		t.Fatalf("expected minted session, got %q minted=%v", sessionID, minted)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != CookieName || !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.MaxAge != int(MaxAge.Seconds()) {
		t.Fatalf("expected max age %d, got %d", int(MaxAge.Seconds()), cookie.MaxAge)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax, got %v", cookie.SameSite)
	}
	if cookie.Value == sessionID {
		t.Fatalf("expected signed cookie value, got raw session id")
	}
}

func TestResolveReusesExistingCookie(t *testing.T) {
	manager := newTestManager(t)
	first := httptest.NewRecorder()
	sessionID, _, err := manager.Resolve(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(first.Result().Cookies()[0])
	second := httptest.NewRecorder()
	again, minted, err := manager.Resolve(second, req)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if minted || again != sessionID {
		t.Fatalf("expected existing session %q, got %q minted=%v", sessionID, again, minted)
	}
	if len(second.Result().Cookies()) != 0 {
		t.Fatalf("expected no new cookie for known session")
	}
}

func TestResolveRejectsTamperedCookie(t *testing.T) {
	manager := newTestManager(t)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged-session"})

	rec := httptest.NewRecorder()
	sessionID, minted, err := manager.Resolve(rec, req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !minted || sessionID == "forged-session" {
		t.Fatalf("expected fresh session for tampered cookie, got %q minted=%v", sessionID, minted)
	}
}

func TestResolveRejectsCookieFromOtherKey(t *testing.T) {
	other, err := NewManager([]byte("another-hash-key-another-hash-ke"), nil, false, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign := httptest.NewRecorder()
	foreignID, _, err := other.Resolve(foreign, httptest.NewRequest(http.MethodPost, "/", nil))
	if err != nil {
		t.Fatalf("foreign resolve: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(foreign.Result().Cookies()[0])
	sessionID, minted, err := newTestManager(t).Resolve(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !minted || sessionID == foreignID {
		t.Fatalf("expected cookie signed by another key to be rejected")
	}
}

func TestNewManagerRequiresHashKey(t *testing.T) {
	if _, err := NewManager(nil, nil, false, nil); err == nil {
		t.Fatalf("expected error for missing hash key")
	}
}

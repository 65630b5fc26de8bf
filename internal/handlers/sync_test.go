package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/sync", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestOriginCheckerAllowlist(t *testing.T) {
	check := originChecker([]string{"https://chat.example.com", "https://staging.example.com"})

	if !check(originRequest("https://chat.example.com")) {
		t.Fatal("configured origin must be allowed")
	}
	if !check(originRequest("HTTPS://CHAT.EXAMPLE.COM")) {
		t.Fatal("origin comparison must be case-insensitive")
	}
	if check(originRequest("https://evil.example.com")) {
		t.Fatal("unlisted origin must be rejected")
	}
	if !check(originRequest("")) {
		t.Fatal("non-browser requests without an Origin header must pass")
	}
}

func TestOriginCheckerWildcard(t *testing.T) {
	check := originChecker([]string{"*"})

	if !check(originRequest("https://anywhere.example.com")) {
		t.Fatal("wildcard must allow any origin")
	}
}

func TestOriginCheckerEmptyListRejectsBrowsers(t *testing.T) {
	check := originChecker(nil)

	if check(originRequest("https://chat.example.com")) {
		t.Fatal("empty allowlist must reject browser origins")
	}
	if !check(originRequest("")) {
		t.Fatal("empty allowlist still passes header-less clients")
	}
}

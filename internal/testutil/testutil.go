// Package testutil provides shared test helpers for the debug HTTP routes.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// loopbackAddr is accepted by tsweb's debug access check.
const loopbackAddr = "127.0.0.1:40000"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest creates a request from a loopback caller. A non-nil form
// is sent as a urlencoded body.
func NewDebugRequest(method, path string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = loopbackAddr
	return req
}

// ServeDebug sends a loopback request through h and returns the recorded
// response.
func ServeDebug(h http.Handler, method, path string, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, NewDebugRequest(method, path, form))
	return w
}

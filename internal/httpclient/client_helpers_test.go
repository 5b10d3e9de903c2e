package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testClient builds a Client closed at test end; nil cfg uses the defaults.
func testClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// drainBody reads what is left of the body so the connection is reused.
func drainBody(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		t.Logf("closing response body: %v", err)
	}
}

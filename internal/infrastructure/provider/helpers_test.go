package provider_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/httpx"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r), nil }

// stubClient answers every request with body and code, recording the last
// request URL in seen.
func stubClient(body string, code int, seen *string) *httpx.Client {
	return &httpx.Client{
		HTTP: &http.Client{
			Timeout: 2 * time.Second,
			Transport: roundTripFunc(func(r *http.Request) *http.Response {
				if seen != nil {
					*seen = r.URL.String()
				}
				return &http.Response{
					StatusCode: code,
					Body:       io.NopCloser(strings.NewReader(body)),
					Header:     make(http.Header),
				}
			}),
		},
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  10 * time.Millisecond,
	}
}

func serve(t *testing.T, h http.HandlerFunc) (*httptest.Server, *httpx.Client) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, &httpx.Client{
		HTTP:            srv.Client(),
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  10 * time.Millisecond,
	}
}

func mustDay(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

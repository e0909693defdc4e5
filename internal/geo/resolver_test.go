package geo

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestHTTPResolver_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/203.0.113.9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"country":"Netherlands","regionName":"North Holland","city":"Amsterdam"}`))
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL, testLogger())
	loc := resolver.Lookup(context.Background(), "203.0.113.9")

	assert.Equal(t, "Netherlands", loc.Country)
	assert.Equal(t, "Amsterdam", loc.City)
}

func TestHTTPResolver_LookupFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL, testLogger())
	loc := resolver.Lookup(context.Background(), "203.0.113.9")

	assert.Equal(t, "Local", loc.Country)
}

func TestHTTPResolver_PrivateAddressesSkipLookup(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL, testLogger())

	for _, ip := range []string{"127.0.0.1", "10.0.0.4", "192.168.1.20", "not-an-ip", ""} {
		loc := resolver.Lookup(context.Background(), ip)
		assert.Equal(t, "Local", loc.Country, "ip %q", ip)
	}
	assert.False(t, called)
}

func TestNoopResolver(t *testing.T) {
	loc := NoopResolver{}.Lookup(context.Background(), "203.0.113.9")
	assert.Equal(t, "Local", loc.Country)
}

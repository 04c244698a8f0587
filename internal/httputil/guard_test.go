package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
)

func TestIsPublicAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"93.184.216.34":    true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"::1":              false,
		"10.1.2.3":         false,
		"172.16.0.9":       false,
		"192.168.1.1":      false,
		"169.254.169.254":  false,
		"fe80::1":          false,
		"fc00::5":          false,
		"100.64.0.1":       false,
		"0.0.0.0":          false,
		"224.0.0.1":        false,
		"::ffff:127.0.0.1": false,
	} {
		if got := IsPublicAddr(netip.MustParseAddr(addr)); got != want {
			t.Errorf("IsPublicAddr(%s) = %v, want %v", addr, got, want)
		}
	}
}

func TestNewTransportRefusesLoopback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	guarded := NewClient(NewTransport(TransportOptions{}), 0)
	_, err := Get(context.Background(), guarded, srv.URL, nil)
	if !errors.Is(err, ErrNonPublicAddress) {
		t.Fatalf("Get() error = %v, want ErrNonPublicAddress", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server saw %d requests through the guarded transport", n)
	}

	open := NewTransport(TransportOptions{AllowPrivate: true})
	defer open.(*http.Transport).CloseIdleConnections()
	resp, err := Get(context.Background(), NewClient(open, 0), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get() with AllowPrivate error: %v", err)
	}
	resp.Body.Close()
	if n := hits.Load(); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}
}

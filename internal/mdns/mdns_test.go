package mdns

import (
	"net"
	"testing"
)

func TestCleanInstance(t *testing.T) {
	if got := cleanInstance(`iiod\ on\ pluto`); got != "iiod on pluto" {
		t.Fatalf("cleanInstance = %q", got)
	}
}

func TestHostURIPrefersIPv4(t *testing.T) {
	h := Host{
		Hostname:  "pluto.local.",
		Port:      30431,
		Addresses: []net.IP{net.ParseIP("fe80::1"), net.ParseIP("192.168.2.1")},
	}
	if got := h.URI(); got != "192.168.2.1:30431" {
		t.Fatalf("URI = %q", got)
	}

	h.Addresses = nil
	if got := h.URI(); got != "pluto.local:30431" {
		t.Fatalf("hostname fallback URI = %q", got)
	}
}

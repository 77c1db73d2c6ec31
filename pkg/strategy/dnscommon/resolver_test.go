package dnscommon

import (
	"testing"
)

func TestTrimDot(t *testing.T) {
	cases := map[string]string{
		"host.example.com.": "host.example.com",
		"host.example.com":  "host.example.com",
		"":                  "",
	}
	for in, want := range cases {
		if got := trimDot(in); got != want {
			t.Errorf("trimDot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExchangeWithNoServersReturnsErrNoServers(t *testing.T) {
	r := &SystemResolver{}
	if _, err := r.exchange(nil, "example.com.", 1); err != errNoServers {
		t.Errorf("expected errNoServers with no configured nameservers, got %v", err)
	}
}

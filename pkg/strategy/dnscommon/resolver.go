// Package dnscommon holds the DNS resolution plumbing shared by the
// DNS-Poll-A (spec.md §4.8) and DNS-Poll-SRV (§4.9) strategies: a small
// Resolver abstraction, injectable for tests, backed in production by a
// real recursive query via github.com/miekg/dns with a net.Resolver
// fallback for environments where /etc/resolv.conf cannot be parsed (e.g.
// most container runtimes still ship one, but some minimal images don't).
package dnscommon

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
)

var errNoServers = errors.New("dnscommon: no nameservers configured in /etc/resolv.conf")

// Resolver is the subset of DNS lookups the polling strategies need.
// Strategies accept one via their Spec's "resolver" option so tests can
// inject a fake without touching real DNS.
type Resolver interface {
	LookupIPs(ctx context.Context, name string) ([]net.IP, error)
	// LookupSRV resolves a fully composed SRV query name (e.g.
	// "myservice.myns.svc.cluster.local.") and returns the dot-trimmed
	// target hostname of each returned record.
	LookupSRV(ctx context.Context, name string) ([]string, error)
}

// SystemResolver resolves via a real DNS client, preferring a direct
// github.com/miekg/dns exchange against the resolvers in /etc/resolv.conf
// and falling back to net.DefaultResolver (cgo/getaddrinfo) if the
// resolv.conf file cannot be read or no nameserver answers.
type SystemResolver struct {
	client  *dns.Client
	servers []string
	net     *net.Resolver
}

// NewSystemResolver builds a SystemResolver, loading nameservers from
// /etc/resolv.conf. If that fails, LookupIPs/LookupSRV silently fall back
// to net.DefaultResolver.
func NewSystemResolver() *SystemResolver {
	r := &SystemResolver{
		client: &dns.Client{Timeout: 5 * time.Second},
		net:    net.DefaultResolver,
	}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range cfg.Servers {
			r.servers = append(r.servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return r
}

func (r *SystemResolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if len(r.servers) == 0 {
		lastErr = errNoServers
	}
	return nil, lastErr
}

// LookupIPs returns every A and AAAA record for name.
func (r *SystemResolver) LookupIPs(ctx context.Context, name string) ([]net.IP, error) {
	var ips []net.IP
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		resp, err := r.exchange(ctx, name, qtype)
		if err != nil || resp == nil {
			continue
		}
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				ips = append(ips, rec.A)
			case *dns.AAAA:
				ips = append(ips, rec.AAAA)
			}
		}
	}
	if len(ips) > 0 {
		return ips, nil
	}
	return r.net.LookupIP(ctx, "ip", name)
}

// LookupSRV returns the fully-qualified, dot-trimmed targets of every SRV
// record found at name. Unlike a conventional "_service._proto.domain"
// SRV lookup, spec.md §4.9 composes the query name directly, so this
// issues a raw SRV query against name as given, falling back to
// net.Resolver's generic SRV path (service="", proto="", name=name) if
// the direct miekg/dns exchange fails.
func (r *SystemResolver) LookupSRV(ctx context.Context, name string) ([]string, error) {
	resp, err := r.exchange(ctx, name, dns.TypeSRV)
	if err == nil && resp != nil {
		var targets []string
		for _, rr := range resp.Answer {
			if srv, ok := rr.(*dns.SRV); ok {
				targets = append(targets, trimDot(srv.Target))
			}
		}
		if len(targets) > 0 {
			return targets, nil
		}
	}
	_, addrs, nerr := r.net.LookupSRV(ctx, "", "", name)
	if nerr != nil {
		if err != nil {
			return nil, err
		}
		return nil, nerr
	}
	targets := make([]string, 0, len(addrs))
	for _, a := range addrs {
		targets = append(targets, trimDot(a.Target))
	}
	return targets, nil
}

func trimDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

// Package resolve looks up the data endpoint's host against a specific DNS
// server instead of the system resolver. It is used when the dashboard runs
// somewhere the system resolver cannot see the monitoring network.
package resolve

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout is the default per-query timeout.
const DefaultTimeout = 3 * time.Second

// Resolver resolves names with A and AAAA queries against one server.
type Resolver struct {
	server  string // host:port of the DNS server
	timeout time.Duration
	client  *dns.Client
	dialer  *net.Dialer
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver) error

// WithTimeout sets the DNS query timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		r.timeout = d
		return nil
	}
}

// New creates a Resolver for the given server. A server without a port
// gets port 53.
func New(server string, opts ...Option) (*Resolver, error) {
	if server == "" {
		return nil, fmt.Errorf("resolve: server must not be empty")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	r := &Resolver{
		server:  server,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
	}

	r.client = &dns.Client{Timeout: r.timeout}
	r.dialer = &net.Dialer{}
	return r, nil
}

// Server returns the host:port queried by this Resolver.
func (r *Resolver) Server() string {
	return r.server
}

// LookupHost returns the addresses for name. IP literals are returned
// unchanged. A records come before AAAA records.
func (r *Resolver) LookupHost(ctx context.Context, name string) ([]string, error) {
	if ip := net.ParseIP(name); ip != nil {
		return []string{ip.String()}, nil
	}

	var addrs []string
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, name, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, found...)
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("resolve %s: no addresses found", name)
	}
	return addrs, nil
}

func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %s: %w", dns.TypeToString[qtype], name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("resolve %s %s: rcode %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}

	var addrs []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			addrs = append(addrs, v.A.String())
		case *dns.AAAA:
			addrs = append(addrs, v.AAAA.String())
		}
	}
	return addrs, nil
}

// DialContext resolves the host part of address with LookupHost and dials
// each result in turn until one connects. It fits http.Transport.DialContext.
func (r *Resolver) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := r.dialer.DialContext(ctx, network, net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("dial %s: %w", address, lastErr)
}

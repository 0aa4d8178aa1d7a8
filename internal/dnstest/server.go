// Package dnstest runs an in-process DNS upstream for tests. It binds a
// UDP socket on a loopback ephemeral port, serves canned answers, and
// records every query it receives so tests can assert on wire-level
// details such as the recursion desired flag.
package dnstest

import (
	"fmt"
	"net"
	"sync"

	"github.com/miekg/dns"
)

// Server is a fake DNS upstream.
type Server struct {
	srv  *dns.Server
	addr string

	mu      sync.Mutex
	queries []*dns.Msg
}

// NewServer starts a fake upstream on 127.0.0.1:0 answering every query
// with handler. Callers must Shutdown the server when done.
func NewServer(handler dns.HandlerFunc) (*Server, error) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding fake upstream: %w", err)
	}

	s := &Server{addr: pc.LocalAddr().String()}
	s.srv = &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			s.mu.Lock()
			s.queries = append(s.queries, req.Copy())
			s.mu.Unlock()
			handler(w, req)
		}),
	}

	go func() {
		// Returns on Shutdown; the socket is already bound so queries
		// sent before the serve loop spins up are not lost.
		_ = s.srv.ActivateAndServe()
	}()

	return s, nil
}

// Addr returns the "host:port" the server listens on.
func (s *Server) Addr() string { return s.addr }

// Shutdown stops the server.
func (s *Server) Shutdown() error { return s.srv.Shutdown() }

// LastQuery returns the most recently received query, or nil if none
// arrived yet.
func (s *Server) LastQuery() *dns.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return nil
	}
	return s.queries[len(s.queries)-1]
}

// QueryCount returns how many queries the server has received.
func (s *Server) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// Queries returns a copy of every query received so far, in arrival
// order.
func (s *Server) Queries() []*dns.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*dns.Msg, len(s.queries))
	copy(out, s.queries)
	return out
}

// Answer builds a handler that replies NOERROR with the given records.
func Answer(rrs ...dns.RR) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		m.Answer = append(m.Answer, rrs...)
		_ = w.WriteMsg(m)
	}
}

// Rcode builds a handler that replies with an empty response carrying
// the given response code (dns.RcodeNameError for NXDOMAIN).
func Rcode(code int) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, code)
		_ = w.WriteMsg(m)
	}
}

// Drop builds a handler that swallows queries without answering, for
// exercising client timeouts without relying on unreachable addresses.
func Drop() dns.HandlerFunc {
	return func(dns.ResponseWriter, *dns.Msg) {}
}

// MustRR parses a record in zone-file syntax ("vertx.io. 300 IN A
// 10.0.0.1") and panics on error. Test-only convenience.
func MustRR(s string) dns.RR {
	rr, err := dns.NewRR(s)
	if err != nil {
		panic(fmt.Sprintf("dnstest: bad record %q: %v", s, err))
	}
	return rr
}

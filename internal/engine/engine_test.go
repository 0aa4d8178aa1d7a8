package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/suite"

	"github.com/lc/dnsq/internal/dnsclient"
	"github.com/lc/dnsq/internal/dnstest"
)

type EngineTestSuite struct {
	suite.Suite
	srv *dnstest.Server
	eng *Engine
}

func (s *EngineTestSuite) SetupTest() {
	srv, err := dnstest.NewServer(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		switch req.Question[0].Qtype {
		case dns.TypeA:
			m.Answer = append(m.Answer, dnstest.MustRR("vertx.io. 300 IN A 10.0.0.1"))
		case dns.TypeAAAA:
			m.Answer = append(m.Answer, dnstest.MustRR("vertx.io. 300 IN AAAA ::1"))
		case dns.TypeMX:
			m.Answer = append(m.Answer, dnstest.MustRR("vertx.io. 300 IN MX 10 mail.vertx.io."))
		case dns.TypePTR:
			ptr := &dns.PTR{
				Hdr: dns.RR_Header{
					Name:   req.Question[0].Name,
					Rrtype: dns.TypePTR,
					Class:  dns.ClassINET,
					Ttl:    300,
				},
				Ptr: "ptr.vertx.io.",
			}
			m.Answer = append(m.Answer, ptr)
		}
		_ = w.WriteMsg(m)
	})
	s.Require().NoError(err)
	s.srv = srv

	client, err := dnsclient.New(srv.Addr())
	s.Require().NoError(err)

	s.eng = New(client)
	s.eng.Run(context.Background())

	s.T().Cleanup(func() {
		_ = s.eng.Close()
		_ = s.srv.Shutdown()
	})
}

func (s *EngineTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

func (s *EngineTestSuite) TestResolve() {
	answers, err := s.eng.Resolve(s.ctx(), "a", "vertx.io")
	s.Require().NoError(err)
	s.Require().Len(answers, 1)
	s.Equal("A", answers[0].Type)
	s.Equal("10.0.0.1", answers[0].Value)
}

func (s *EngineTestSuite) TestResolveMX() {
	answers, err := s.eng.Resolve(s.ctx(), "MX", "vertx.io")
	s.Require().NoError(err)
	s.Require().Len(answers, 1)
	s.Equal("mail.vertx.io", answers[0].Value)
	s.Equal(uint16(10), answers[0].Preference)
}

func (s *EngineTestSuite) TestResolveUnsupportedType() {
	_, err := s.eng.Resolve(s.ctx(), "AXFR", "vertx.io")
	s.Error(err)
}

func (s *EngineTestSuite) TestLookup() {
	addr, err := s.eng.Lookup(s.ctx(), "vertx.io")
	s.Require().NoError(err)
	s.Equal("10.0.0.1", addr)
}

func (s *EngineTestSuite) TestReverse() {
	name, err := s.eng.Reverse(s.ctx(), "10.0.0.1")
	s.Require().NoError(err)
	s.Equal("ptr.vertx.io", name)
}

// Concurrent callers must be serialized onto the client without
// tripping its ownership guard.
func (s *EngineTestSuite) TestConcurrentCallers() {
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.eng.Resolve(s.ctx(), "A", "vertx.io")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	stats := s.eng.Stats()
	s.EqualValues(workers, stats.Served)
	s.EqualValues(0, stats.InFlight)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

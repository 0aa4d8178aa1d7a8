package api_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lc/dnsq/internal/dnsclient"
	"github.com/lc/dnsq/internal/dnstest"
	"github.com/lc/dnsq/internal/engine"
	"github.com/lc/dnsq/pkg/api"
	"github.com/lc/dnsq/pkg/client"
)

type APITestSuite struct {
	suite.Suite
	cli *client.Client
}

func (s *APITestSuite) SetupTest() {
	upstream, err := dnstest.NewServer(dnstest.Answer(
		dnstest.MustRR("vertx.io. 300 IN A 10.0.0.1"),
	))
	s.Require().NoError(err)

	dc, err := dnsclient.New(upstream.Addr())
	s.Require().NoError(err)

	eng := engine.New(dc)
	eng.Run(context.Background())

	srv := api.New(eng)
	sockPath := filepath.Join(s.T().TempDir(), "d.sock")
	go func() { _ = srv.ListenAndServe(sockPath) }()

	s.cli = client.New(sockPath)

	s.T().Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = eng.Close()
		_ = upstream.Shutdown()
	})
}

func (s *APITestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

func (s *APITestSuite) TestResolve() {
	answers, err := s.cli.Resolve(s.ctx(), "A", "vertx.io")
	s.Require().NoError(err)
	s.Require().Len(answers, 1)
	s.Equal("10.0.0.1", answers[0].Value)
}

func (s *APITestSuite) TestLookup() {
	addr, err := s.cli.Lookup(s.ctx(), "vertx.io")
	s.Require().NoError(err)
	s.Equal("10.0.0.1", addr)
}

func (s *APITestSuite) TestResolveRequiresName() {
	_, err := s.cli.Resolve(s.ctx(), "A", "")
	s.Error(err)
	s.Contains(err.Error(), "name required")
}

func (s *APITestSuite) TestStatus() {
	_, err := s.cli.Lookup(s.ctx(), "vertx.io")
	s.Require().NoError(err)

	status, err := s.cli.Status(s.ctx())
	s.Require().NoError(err)
	s.EqualValues(0, status.InFlight)
	s.GreaterOrEqual(status.Served, int64(1))
	s.NotEmpty(status.Version)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

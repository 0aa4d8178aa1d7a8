package socket

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type stubChecker struct {
	running bool
}

func (c stubChecker) IsRunning(string) bool { return c.running }

type SocketTestSuite struct {
	suite.Suite
}

func (s *SocketTestSuite) socketPath() string {
	// Keep the path short; unix socket paths have a hard length limit.
	return filepath.Join(s.T().TempDir(), "d.sock")
}

func (s *SocketTestSuite) TestListenAndConnect() {
	path := s.socketPath()

	ln, err := Listen(path)
	s.Require().NoError(err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := ConnectContext(ctx, path)
	s.Require().NoError(err)
	defer conn.Close()

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(2 * time.Second):
		s.Fail("listener never accepted the connection")
	}
}

func (s *SocketTestSuite) TestListenRejectsLiveSocket() {
	path := s.socketPath()

	ln, err := Listen(path)
	s.Require().NoError(err)
	defer ln.Close()

	_, err = Listen(path)
	s.ErrorIs(err, ErrAddressInUse)
}

func (s *SocketTestSuite) TestListenReplacesStaleSocket() {
	path := s.socketPath()

	ln, err := Listen(path)
	s.Require().NoError(err)
	ln.Close() // leaves the socket file behind with nothing listening

	ln2, err := Listen(path)
	s.Require().NoError(err)
	ln2.Close()
}

func (s *SocketTestSuite) TestConnectFailsFastWhenDaemonDead() {
	cfg := &Config{
		StartupTimeout: 200 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		Permissions:    0o600,
		ProcessName:    "dnsqd",
	}
	sock := New(cfg, stubChecker{running: false})
	// Age the socket past the early-startup grace period.
	sock.startTime = time.Now().Add(-5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := sock.Connect(ctx, s.socketPath())
	s.ErrorIs(err, ErrNotRunning)
}

func TestSocketSuite(t *testing.T) {
	suite.Run(t, new(SocketTestSuite))
}

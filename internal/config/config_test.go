package config_test

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/lc/dnsq/internal/config"
	"github.com/lc/dnsq/internal/mocks"
)

type ConfigTestSuite struct {
	suite.Suite
	fs       mockFS
	provider config.Provider
}

type mockFS struct {
	files map[string]string
}

func (m mockFS) Stat(path string) (os.FileInfo, error) {
	if _, ok := m.files[path]; !ok {
		return nil, os.ErrNotExist
	}
	return nil, nil
}

func (m mockFS) MkdirAll(_ string, _ os.FileMode) error {
	return nil
}

func (m mockFS) Open(path string) (*os.File, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	tmp, err := os.CreateTemp("", "mock-*") // caller cleans up in t.Cleanup
	if err != nil {
		return nil, err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, err
	}
	return tmp, nil
}

func (m mockFS) WriteFile(path string, b []byte, _ os.FileMode) error {
	m.files[path] = string(b)
	return nil
}

func (s *ConfigTestSuite) SetupTest() {
	s.fs = mockFS{files: map[string]string{}}
	s.provider = config.NewWithPath(s.fs, "/etc/dnsq/config.yaml")
}

func (s *ConfigTestSuite) TestDefaultsWhenFileMissing() {
	cfg, err := s.provider.Load()
	s.Require().NoError(err)
	s.Equal(config.DefaultSocketPath, cfg.Socket.Path)
	s.Equal(config.DefaultResolverHost, cfg.Resolver.Host)
	s.Equal(config.DefaultResolverPort, cfg.Resolver.Port)
	s.Equal(config.DefaultQueryTimeout, cfg.Resolver.QueryTimeout)
	s.False(cfg.Resolver.DisableRecursion)
	s.False(cfg.Resolver.LogActivity)
}

func (s *ConfigTestSuite) TestLoadValidConfig() {
	s.fs.files["/etc/dnsq/config.yaml"] = `
socket:
  path: /tmp/dnsqd.socket
resolver:
  host: 8.8.8.8
  port: 5353
  query_timeout: 2s
  log_activity: true
`
	cfg, err := s.provider.Load()
	s.Require().NoError(err)
	s.Equal("/tmp/dnsqd.socket", cfg.Socket.Path)
	s.Equal("8.8.8.8", cfg.Resolver.Host)
	s.Equal(5353, cfg.Resolver.Port)
	s.Equal(2*time.Second, cfg.Resolver.QueryTimeout)
	s.True(cfg.Resolver.LogActivity)
	s.Equal("8.8.8.8:5353", cfg.Resolver.Addr())
}

func (s *ConfigTestSuite) TestPartialConfigGetsDefaults() {
	s.fs.files["/etc/dnsq/config.yaml"] = `
resolver:
  host: 9.9.9.9
`
	cfg, err := s.provider.Load()
	s.Require().NoError(err)
	s.Equal("9.9.9.9", cfg.Resolver.Host)
	s.Equal(config.DefaultResolverPort, cfg.Resolver.Port)
	s.Equal(config.DefaultQueryTimeout, cfg.Resolver.QueryTimeout)
	s.Equal(config.DefaultSocketPath, cfg.Socket.Path)
}

func (s *ConfigTestSuite) TestInvalidConfig() {
	testCases := []struct {
		name string
		yaml string
	}{
		{
			name: "port out of range",
			yaml: "resolver:\n  port: 70000\n",
		},
		{
			name: "timeout too small",
			yaml: "resolver:\n  query_timeout: 10ms\n",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.fs.files["/etc/dnsq/config.yaml"] = tc.yaml
			_, err := s.provider.Load()
			s.ErrorIs(err, config.ErrInvalidConfig)
		})
	}
}

func (s *ConfigTestSuite) TestMalformedYAML() {
	s.fs.files["/etc/dnsq/config.yaml"] = "resolver: [not a mapping"
	_, err := s.provider.Load()
	s.Error(err)
}

func (s *ConfigTestSuite) TestOpenFailurePropagates() {
	fs := new(mocks.MockOsFS)
	fs.On("Stat", mock.Anything).Return(nil, os.ErrNotExist)
	fs.On("MkdirAll", mock.Anything, mock.Anything).Return(nil)
	fs.On("Open", "/etc/dnsq/config.yaml").Return(nil, errors.New("permission denied"))

	provider := config.NewWithPath(fs, "/etc/dnsq/config.yaml")
	_, err := provider.Load()
	s.Error(err)
	s.NotErrorIs(err, config.ErrNoConfig)
	fs.AssertExpectations(s.T())
}

func (s *ConfigTestSuite) TestValidate() {
	cfg := config.Default()
	s.NoError(cfg.Validate())

	cfg.Resolver.Host = " "
	s.Error(cfg.Validate())
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

package dnsclient

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/suite"
)

type DecodeTestSuite struct {
	suite.Suite
}

func (s *DecodeTestSuite) TestLongIPv6() {
	testCases := []struct {
		name     string
		ip       string
		expected string
	}{
		{
			name:     "loopback",
			ip:       "::1",
			expected: "0:0:0:0:0:0:0:1",
		},
		{
			name:     "all zeros",
			ip:       "::",
			expected: "0:0:0:0:0:0:0:0",
		},
		{
			name:     "mixed groups",
			ip:       "2001:db8::8:800:200c:417a",
			expected: "2001:db8:0:0:8:800:200c:417a",
		},
		{
			name:     "fully populated",
			ip:       "fe80:1:2:3:4:5:6:7",
			expected: "fe80:1:2:3:4:5:6:7",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			ip := net.ParseIP(tc.ip)
			s.Require().NotNil(ip)
			s.Equal(tc.expected, longIPv6(ip))
		})
	}
}

func (s *DecodeTestSuite) TestDecodeSkipsForeignTypes() {
	answers := []dns.RR{
		&dns.CNAME{
			Hdr:    dns.RR_Header{Name: "vertx.io.", Rrtype: dns.TypeCNAME, Class: dns.ClassINET},
			Target: "cname.vertx.io.",
		},
		&dns.A{
			Hdr: dns.RR_Header{Name: "cname.vertx.io.", Rrtype: dns.TypeA, Class: dns.ClassINET},
			A:   net.ParseIP("10.0.0.1"),
		},
	}

	ips, err := decodeA(answers)
	s.NoError(err)
	s.Equal([]string{"10.0.0.1"}, ips)

	names, err := decodeCNAME(answers)
	s.NoError(err)
	s.Equal([]string{"cname.vertx.io"}, names)
}

func (s *DecodeTestSuite) TestDecodeEmptyAnswers() {
	ips, err := decodeA(nil)
	s.NoError(err)
	s.Empty(ips)

	records, err := decodeSRV([]dns.RR{})
	s.NoError(err)
	s.Empty(records)
}

func (s *DecodeTestSuite) TestDecodeMalformedPayload() {
	_, err := decodeA([]dns.RR{
		&dns.A{Hdr: dns.RR_Header{Name: "vertx.io.", Rrtype: dns.TypeA}},
	})
	s.ErrorIs(err, ErrDecode)

	_, err = decodeAAAA([]dns.RR{
		&dns.AAAA{Hdr: dns.RR_Header{Name: "vertx.io.", Rrtype: dns.TypeAAAA}},
	})
	s.ErrorIs(err, ErrDecode)
}

func (s *DecodeTestSuite) TestDecodeTXTSplitsStrings() {
	answers := []dns.RR{
		&dns.TXT{
			Hdr: dns.RR_Header{Name: "vertx.io.", Rrtype: dns.TypeTXT, Class: dns.ClassINET},
			Txt: []string{"first", "second"},
		},
	}

	texts, err := decodeTXT(answers)
	s.NoError(err)
	s.Equal([]string{"first", "second"}, texts)
}

func (s *DecodeTestSuite) TestDecodeMX() {
	answers := []dns.RR{
		&dns.MX{
			Hdr:        dns.RR_Header{Name: "vertx.io.", Rrtype: dns.TypeMX, Class: dns.ClassINET},
			Preference: 10,
			Mx:         "mail.vertx.io.",
		},
		&dns.MX{
			Hdr:        dns.RR_Header{Name: "vertx.io.", Rrtype: dns.TypeMX, Class: dns.ClassINET},
			Preference: 20,
			Mx:         "backup.vertx.io.",
		},
	}

	records, err := decodeMX(answers)
	s.NoError(err)
	s.Equal([]MxRecord{
		{Preference: 10, Name: "mail.vertx.io"},
		{Preference: 20, Name: "backup.vertx.io"},
	}, records)
}

func TestDecodeSuite(t *testing.T) {
	suite.Run(t, new(DecodeTestSuite))
}

package dnsclient

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// MxRecord is a single mail-exchange answer.
type MxRecord struct {
	Preference uint16
	Name       string
}

// SrvRecord is a single service-location answer.
type SrvRecord struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// The decoders below are pure projections from an answer section to
// typed values. Records of other types are skipped, not rejected, so a
// CNAME chain in front of the requested type is tolerated. A record of
// the requested type with a missing payload is an ErrDecode.

func decodeA(answers []dns.RR) ([]string, error) {
	var ips []string
	for _, rr := range answers {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if a.A == nil {
			return nil, fmt.Errorf("%w: A record without address", ErrDecode)
		}
		ips = append(ips, a.A.String())
	}
	return ips, nil
}

func decodeAAAA(answers []dns.RR) ([]string, error) {
	var ips []string
	for _, rr := range answers {
		aaaa, ok := rr.(*dns.AAAA)
		if !ok {
			continue
		}
		if aaaa.AAAA == nil {
			return nil, fmt.Errorf("%w: AAAA record without address", ErrDecode)
		}
		ips = append(ips, longIPv6(aaaa.AAAA))
	}
	return ips, nil
}

func decodeCNAME(answers []dns.RR) ([]string, error) {
	var names []string
	for _, rr := range answers {
		cname, ok := rr.(*dns.CNAME)
		if !ok {
			continue
		}
		if cname.Target == "" {
			return nil, fmt.Errorf("%w: CNAME record without target", ErrDecode)
		}
		names = append(names, unFQDN(cname.Target))
	}
	return names, nil
}

func decodeNS(answers []dns.RR) ([]string, error) {
	var names []string
	for _, rr := range answers {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		if ns.Ns == "" {
			return nil, fmt.Errorf("%w: NS record without nameserver", ErrDecode)
		}
		names = append(names, unFQDN(ns.Ns))
	}
	return names, nil
}

func decodePTR(answers []dns.RR) ([]string, error) {
	var names []string
	for _, rr := range answers {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		if ptr.Ptr == "" {
			return nil, fmt.Errorf("%w: PTR record without target", ErrDecode)
		}
		names = append(names, unFQDN(ptr.Ptr))
	}
	return names, nil
}

func decodeMX(answers []dns.RR) ([]MxRecord, error) {
	var records []MxRecord
	for _, rr := range answers {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}
		if mx.Mx == "" {
			return nil, fmt.Errorf("%w: MX record without exchange", ErrDecode)
		}
		records = append(records, MxRecord{
			Preference: mx.Preference,
			Name:       unFQDN(mx.Mx),
		})
	}
	return records, nil
}

func decodeTXT(answers []dns.RR) ([]string, error) {
	var texts []string
	for _, rr := range answers {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		// One TXT record may carry several character strings; each is a
		// separate answer to the caller.
		texts = append(texts, txt.Txt...)
	}
	return texts, nil
}

func decodeSRV(answers []dns.RR) ([]SrvRecord, error) {
	var records []SrvRecord
	for _, rr := range answers {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		if srv.Target == "" {
			return nil, fmt.Errorf("%w: SRV record without target", ErrDecode)
		}
		records = append(records, SrvRecord{
			Priority: srv.Priority,
			Weight:   srv.Weight,
			Port:     srv.Port,
			Target:   unFQDN(srv.Target),
		})
	}
	return records, nil
}

// longIPv6 renders an IPv6 address in the canonical eight-group long
// form ("0:0:0:0:0:0:0:1"), never the compressed "::1" form.
func longIPv6(ip net.IP) string {
	ip16 := ip.To16()
	if ip16 == nil {
		return ip.String()
	}
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = strconv.FormatUint(uint64(ip16[2*i])<<8|uint64(ip16[2*i+1]), 16)
	}
	return strings.Join(groups, ":")
}

// unFQDN strips the trailing root dot from an on-wire name.
func unFQDN(name string) string {
	return strings.TrimSuffix(name, ".")
}

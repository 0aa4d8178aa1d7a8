package dnsclient

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

var (
	// ErrMissingName is returned synchronously when a required name or
	// address argument is empty. No query is sent.
	ErrMissingName = errors.New("name is required")
	// ErrConcurrentUse is returned synchronously when a client is entered
	// from two goroutines at once. The client is single-owner.
	ErrConcurrentUse = errors.New("dns client is not safe for concurrent use")
	// ErrClosed is returned for operations on a closed client, and is the
	// failure delivered to queries still pending when Close is called.
	ErrClosed = errors.New("dns client is closed")
	// ErrInvalidAddress is returned synchronously when a reverse lookup
	// is given something that is not a literal IP address.
	ErrInvalidAddress = errors.New("not a valid IP address")
	// ErrNotFound is delivered when a single-answer operation receives a
	// successful response with an empty answer section.
	ErrNotFound = errors.New("no records found")
	// ErrTimeout is delivered when no response arrives before the query
	// deadline. It is always wrapped with the query name.
	ErrTimeout = errors.New("DNS query timeout")
	// ErrDecode is delivered when a record payload cannot be interpreted
	// as its declared type.
	ErrDecode = errors.New("malformed record payload")
)

// DNSError reports a response that arrived with a non-NOERROR code.
// Callers inspect Code (via errors.As) to tell NXDOMAIN apart from other
// failures instead of parsing the message.
type DNSError struct {
	Code int
}

func (e *DNSError) Error() string {
	name, ok := dns.RcodeToString[e.Code]
	if !ok {
		name = fmt.Sprintf("RCODE %d", e.Code)
	}
	return fmt.Sprintf("dns query failed: %s", name)
}

// IsNXDomain reports whether err carries the NXDOMAIN response code.
func IsNXDomain(err error) bool {
	var de *DNSError
	return errors.As(err, &de) && de.Code == dns.RcodeNameError
}

func timeoutError(name string) error {
	return fmt.Errorf("%w for %s", ErrTimeout, name)
}

func notFoundError(name string) error {
	return fmt.Errorf("%w for %s", ErrNotFound, name)
}

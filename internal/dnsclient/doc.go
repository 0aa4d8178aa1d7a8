// Package dnsclient implements an asynchronous DNS resolution client
// bound to a single upstream server.
//
// Operations never block: each one validates its arguments, registers a
// query, and returns. The typed result (or failure) is delivered later
// to the caller's handler, exactly once per query.
//
// # Ownership model
//
// All query state lives on one loop goroutine. Public operations
// enqueue commands onto that loop; responses and timer expiries arrive
// there as well, so a query observes a strict ordering of transitions.
// The client is therefore not internally locked, and entering the
// public API from two goroutines at once is a programming error that
// fails synchronously with ErrConcurrentUse. Programs that want to
// drive one client from many goroutines should serialize on their side
// (see internal/engine) or create a client per goroutine.
//
// # Query lifecycle
//
// A query is Pending from registration until exactly one of:
//
//   - a response with its transaction id arrives (success, or a
//     *DNSError carrying the response code),
//   - its deadline fires (error wrapping ErrTimeout, message includes
//     the query name),
//   - the send fails (transport error, timer bypassed),
//   - the client is closed (ErrClosed).
//
// Responses whose transaction id is no longer registered are discarded.
// InFlight exposes the registry occupancy for leak checks.
//
// # Basic usage
//
//	c, err := dnsclient.New("1.1.1.1:53",
//		dnsclient.WithQueryTimeout(5*time.Second),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Lookup4("example.com", func(addr string, err error) {
//		// runs on the client's loop goroutine; do not block here
//	})
//
// Wire encoding and decoding is delegated to github.com/miekg/dns.
package dnsclient

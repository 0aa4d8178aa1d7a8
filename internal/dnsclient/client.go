package dnsclient

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/atomic"

	"github.com/lc/dnsq/internal/log"
)

const (
	// DefaultQueryTimeout bounds how long a single query may stay
	// in flight before it fails.
	DefaultQueryTimeout = 5 * time.Second

	// Small buffer for commands to avoid blocking callers momentarily.
	_commandBufferSize = 16
	// Largest datagram we accept from the upstream.
	_maxPacketSize = 4096
)

// Client is an asynchronous DNS client bound to a single upstream
// server. Every operation returns immediately; the result is delivered
// to the supplied handler exactly once, from the client's own loop
// goroutine. Handlers must not block.
//
// A Client is single-owner: its registry of in-flight queries lives on
// the loop goroutine and the public API must not be entered from two
// goroutines at once. Overlapping entry fails fast with ErrConcurrentUse
// rather than racing.
type Client struct {
	addr             string
	queryTimeout     time.Duration
	recursionDesired bool
	logActivity      bool

	conn    net.Conn
	cmdChan chan command // drained only by runLoop
	quit    chan struct{}

	// Owned by runLoop. Never touched from other goroutines.
	pending map[uint16]*pendingQuery
	nextID  uint16

	inFlight atomic.Int64
	busy     atomic.Bool
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// pendingQuery is one registered, uncompleted query. It leaves the
// registry exactly once: on response match, timeout, send failure, or
// client close.
type pendingQuery struct {
	id       uint16
	name     string
	qtype    uint16
	issuedAt time.Time
	timer    *time.Timer
	done     completionFn
}

// completionFn receives the raw answer section or the terminal error.
type completionFn func(answers []dns.RR, err error)

// Opt is a function option for configuring the Client.
type Opt func(c *Client)

// WithQueryTimeout returns an option to set the per-query deadline.
func WithQueryTimeout(timeout time.Duration) Opt {
	return func(c *Client) {
		c.queryTimeout = timeout
	}
}

// WithRecursionDesired returns an option to control the recursion
// desired flag on outbound queries. It defaults to set.
func WithRecursionDesired(rd bool) Opt {
	return func(c *Client) {
		c.recursionDesired = rd
	}
}

// WithActivityLogging returns an option to surface every outbound and
// inbound packet on the activity logger.
func WithActivityLogging(enabled bool) Opt {
	return func(c *Client) {
		c.logActivity = enabled
	}
}

// New creates a Client talking to the upstream at addr ("host:port").
func New(addr string, opts ...Opt) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("%w: upstream address", ErrMissingName)
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing upstream %s: %w", addr, err)
	}

	c := &Client{
		addr:             addr,
		queryTimeout:     DefaultQueryTimeout,
		recursionDesired: true,
		conn:             conn,
		cmdChan:          make(chan command, _commandBufferSize),
		quit:             make(chan struct{}),
		pending:          make(map[uint16]*pendingQuery),
		nextID:           seedID(),
	}

	for _, o := range opts {
		o(c)
	}

	c.wg.Add(2)
	go c.runLoop()
	go c.readLoop()

	return c, nil
}

// seedID picks a random starting point for transaction id allocation.
func seedID() uint16 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<16))
	if err != nil {
		return 0
	}
	return uint16(n.Int64())
}

// InFlight reports the number of registered, uncompleted queries.
// It returns to 0 once every issued query has reached a terminal state.
func (c *Client) InFlight() int64 {
	return c.inFlight.Load()
}

// Close fails all still-pending queries with ErrClosed, releases their
// timers, and closes the upstream socket. It is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.quit)
	err := c.conn.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("closing upstream socket: %w", err)
	}
	return nil
}

// --- public operations ---------------------------------------------

// Lookup resolves name to its first address of any family, preferring
// IPv4 over IPv6. An empty answer set for both families is ErrNotFound.
func (c *Client) Lookup(name string, handler func(string, error)) error {
	return c.submit(name, dns.TypeA, func(answers []dns.RR, err error) {
		if err != nil {
			handler("", err)
			return
		}
		ips, derr := decodeA(answers)
		if derr != nil {
			handler("", derr)
			return
		}
		if len(ips) > 0 {
			handler(ips[0], nil)
			return
		}
		// No IPv4 answer. We are on the loop goroutine, so issue the
		// AAAA fallback directly instead of re-entering the public API.
		c.issue(issueCmd{
			name:  name,
			qtype: dns.TypeAAAA,
			done:  firstOf(name, decodeAAAA, handler),
		})
	})
}

// Lookup4 resolves name to its first IPv4 address.
func (c *Client) Lookup4(name string, handler func(string, error)) error {
	return c.submit(name, dns.TypeA, firstOf(name, decodeA, handler))
}

// Lookup6 resolves name to its first IPv6 address, rendered in the
// canonical eight-group long form.
func (c *Client) Lookup6(name string, handler func(string, error)) error {
	return c.submit(name, dns.TypeAAAA, firstOf(name, decodeAAAA, handler))
}

// ResolveA resolves all IPv4 addresses for name, in answer order.
func (c *Client) ResolveA(name string, handler func([]string, error)) error {
	return c.submit(name, dns.TypeA, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeA(answers))
	})
}

// ResolveAAAA resolves all IPv6 addresses for name, in answer order and
// long form.
func (c *Client) ResolveAAAA(name string, handler func([]string, error)) error {
	return c.submit(name, dns.TypeAAAA, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeAAAA(answers))
	})
}

// ResolveCNAME resolves the canonical names for name.
func (c *Client) ResolveCNAME(name string, handler func([]string, error)) error {
	return c.submit(name, dns.TypeCNAME, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeCNAME(answers))
	})
}

// ResolveMX resolves the mail exchangers for name.
func (c *Client) ResolveMX(name string, handler func([]MxRecord, error)) error {
	return c.submit(name, dns.TypeMX, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeMX(answers))
	})
}

// ResolveTXT resolves the text records for name.
func (c *Client) ResolveTXT(name string, handler func([]string, error)) error {
	return c.submit(name, dns.TypeTXT, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeTXT(answers))
	})
}

// ResolveNS resolves the nameservers for name.
func (c *Client) ResolveNS(name string, handler func([]string, error)) error {
	return c.submit(name, dns.TypeNS, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeNS(answers))
	})
}

// ResolvePTR resolves the target of an already-formed reverse query
// name ("1.0.0.10.in-addr.arpa").
func (c *Client) ResolvePTR(name string, handler func(string, error)) error {
	return c.submit(name, dns.TypePTR, firstOf(name, decodePTR, handler))
}

// ResolveSRV resolves the service records for name.
func (c *Client) ResolveSRV(name string, handler func([]SrvRecord, error)) error {
	return c.submit(name, dns.TypeSRV, func(answers []dns.RR, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		handler(decodeSRV(answers))
	})
}

// ReverseLookup builds the in-addr.arpa / ip6.arpa query name for a
// literal IPv4 or IPv6 address and resolves its PTR target.
func (c *Client) ReverseLookup(address string, handler func(string, error)) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: address", ErrMissingName)
	}
	arpa, err := dns.ReverseAddr(address)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return c.submit(arpa, dns.TypePTR, firstOf(address, decodePTR, handler))
}

// firstOf adapts a slice decoder into a single-answer completion:
// the first decoded value wins, an empty answer set is ErrNotFound.
func firstOf(name string, decode func([]dns.RR) ([]string, error), handler func(string, error)) completionFn {
	return func(answers []dns.RR, err error) {
		if err != nil {
			handler("", err)
			return
		}
		values, derr := decode(answers)
		if derr != nil {
			handler("", derr)
			return
		}
		if len(values) == 0 {
			handler("", notFoundError(name))
			return
		}
		handler(values[0], nil)
	}
}

// submit validates synchronously and hands the query to the loop.
// Validation failures happen before any network activity and before the
// query is registered.
func (c *Client) submit(name string, qtype uint16, done completionFn) error {
	if strings.TrimSpace(name) == "" {
		return ErrMissingName
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrConcurrentUse
	}
	defer c.busy.Store(false)
	if c.closed.Load() {
		return ErrClosed
	}

	select {
	case c.cmdChan <- issueCmd{name: name, qtype: qtype, done: done}:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// --- event loop -----------------------------------------------------

// runLoop owns the registry. Every transition a query makes happens
// here, so a query can never observe two conflicting transitions.
func (c *Client) runLoop() {
	defer c.wg.Done()

	for {
		select {
		case cmd := <-c.cmdChan:
			switch cmd := cmd.(type) {
			case issueCmd:
				c.issue(cmd)
			case responseCmd:
				c.handleResponse(cmd.msg)
			case timeoutCmd:
				c.handleTimeout(cmd.id)
			default:
				log.Warnf("dnsclient: received unknown command type: %T", cmd)
			}
		case <-c.quit:
			c.failPending(ErrClosed)
			return
		}
	}
}

// readLoop feeds received datagrams into the loop. Decoding failures
// and transient read errors are dropped here; the per-query timer is
// the backstop.
func (c *Client) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, _maxPacketSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if c.closed.Load() {
				return
			}
			// ICMP unreachable surfaces as a read error on a connected
			// UDP socket. Nothing to correlate it to.
			log.Debugf("dnsclient: read from %s: %v", c.addr, err)
			continue
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			log.Warnf("dnsclient: dropping undecodable packet from %s: %v", c.addr, err)
			continue
		}

		select {
		case c.cmdChan <- responseCmd{msg: msg}:
		case <-c.quit:
			return
		}
	}
}

// issue registers a query, arms its deadline, and sends it. A send
// failure fails the query immediately, bypassing the timer.
func (c *Client) issue(cmd issueCmd) {
	id := c.allocID()
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(cmd.name), cmd.qtype)
	msg.Id = id
	msg.RecursionDesired = c.recursionDesired

	packed, err := msg.Pack()
	if err != nil {
		cmd.done(nil, fmt.Errorf("encoding query for %s: %w", cmd.name, err))
		return
	}

	q := &pendingQuery{
		id:       id,
		name:     cmd.name,
		qtype:    cmd.qtype,
		issuedAt: time.Now(),
		done:     cmd.done,
	}
	c.pending[id] = q
	c.inFlight.Inc()

	q.timer = time.AfterFunc(c.queryTimeout, func() {
		select {
		case c.cmdChan <- timeoutCmd{id: id}:
		case <-c.quit:
		}
	})

	if c.logActivity {
		log.Activity().Infow("dns query sent",
			"id", id,
			"name", cmd.name,
			"type", dns.TypeToString[cmd.qtype],
			"server", c.addr,
			"bytes", len(packed),
		)
	}

	if _, err := c.conn.Write(packed); err != nil {
		c.complete(id, nil, fmt.Errorf("sending query for %s: %w", cmd.name, err))
	}
}

// handleResponse matches a response to its pending query by transaction
// id. Responses with no match (completed, timed out, or forged) are
// discarded; first match wins.
func (c *Client) handleResponse(msg *dns.Msg) {
	q, ok := c.pending[msg.Id]
	if !ok {
		log.Debugf("dnsclient: discarding response with unknown id %d", msg.Id)
		return
	}

	if c.logActivity {
		log.Activity().Infow("dns response received",
			"id", msg.Id,
			"name", q.name,
			"rcode", dns.RcodeToString[msg.Rcode],
			"answers", len(msg.Answer),
			"rtt", time.Since(q.issuedAt).String(),
		)
	}

	if msg.Rcode != dns.RcodeSuccess {
		c.complete(msg.Id, nil, &DNSError{Code: msg.Rcode})
		return
	}
	c.complete(msg.Id, msg.Answer, nil)
}

func (c *Client) handleTimeout(id uint16) {
	q, ok := c.pending[id]
	if !ok {
		return
	}
	c.complete(id, nil, timeoutError(q.name))
}

// complete removes the query from the registry and fires its handler.
// The registry entry and timer are gone before the handler runs, so
// InFlight observed from the handler already excludes this query.
func (c *Client) complete(id uint16, answers []dns.RR, err error) {
	q, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	if q.timer != nil {
		q.timer.Stop()
	}
	c.inFlight.Dec()
	q.done(answers, err)
}

func (c *Client) failPending(err error) {
	for id := range c.pending {
		c.complete(id, nil, err)
	}
}

// allocID returns a transaction id not currently in flight. Ids
// increment with wraparound; occupied slots are skipped, so at most one
// live query exists per id.
func (c *Client) allocID() uint16 {
	for {
		c.nextID++
		if _, busy := c.pending[c.nextID]; !busy {
			return c.nextID
		}
	}
}

// --- commands -------------------------------------------------------

type command interface {
	isCommand()
}

type issueCmd struct {
	name  string
	qtype uint16
	done  completionFn
}

func (issueCmd) isCommand() {}

type responseCmd struct {
	msg *dns.Msg
}

func (responseCmd) isCommand() {}

type timeoutCmd struct {
	id uint16
}

func (timeoutCmd) isCommand() {}

// Package engine exposes one dnsclient.Client to many callers. The
// client is single-owner, so all entry into it is funneled through a
// single runLoop goroutine fed by a command channel; callers block on a
// per-request reply channel while completions arrive asynchronously.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/lc/dnsq/internal/dnsclient"
	"github.com/lc/dnsq/internal/log"
)

// Small buffer for commands to avoid blocking senders momentarily.
const _commandBufferSize = 10

// Answer is one resolved record in API-friendly form. Value carries the
// address, name, or text for simple types; MX and SRV populate their
// numeric fields as well.
type Answer struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	Preference uint16 `json:"preference,omitempty"`
	Priority   uint16 `json:"priority,omitempty"`
	Weight     uint16 `json:"weight,omitempty"`
	Port       uint16 `json:"port,omitempty"`
	Target     string `json:"target,omitempty"`
}

// Stats is a snapshot of engine counters.
type Stats struct {
	InFlight int64 `json:"in_flight"`
	Served   int64 `json:"served"`
}

// Engine serializes resolution requests onto a single DNS client.
type Engine struct {
	client *dnsclient.Client

	cmdChan  chan resolveCmd
	wg       sync.WaitGroup
	cancelFn context.CancelFunc
	served   atomic.Int64
}

// New creates an Engine owning the given client. Run must be called
// before requests are accepted, and the engine closes the client on
// Close.
func New(client *dnsclient.Client) *Engine {
	return &Engine{
		client:  client,
		cmdChan: make(chan resolveCmd, _commandBufferSize),
	}
}

// Run starts the engine's processing goroutine. The provided context
// bounds its lifetime.
func (e *Engine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel

	e.wg.Add(1)
	go e.runLoop(runCtx)

	log.Info("engine: started")
}

// Close stops the processing goroutine and closes the underlying
// client, failing any still-pending queries.
func (e *Engine) Close() error {
	if e.cancelFn != nil {
		e.cancelFn()
	}
	e.wg.Wait()
	err := e.client.Close()
	log.Info("engine: stopped")
	return err
}

// Resolve resolves name for the given record type ("A", "AAAA", "CNAME",
// "MX", "TXT", "NS", "PTR", "SRV") and returns all answers in order.
func (e *Engine) Resolve(ctx context.Context, rtype, name string) ([]Answer, error) {
	return e.execute(ctx, resolveCmd{
		id:    uuid.NewString(),
		op:    opResolve,
		rtype: strings.ToUpper(strings.TrimSpace(rtype)),
		name:  name,
	})
}

// Lookup resolves name to its first address of any family.
func (e *Engine) Lookup(ctx context.Context, name string) (string, error) {
	answers, err := e.execute(ctx, resolveCmd{
		id:   uuid.NewString(),
		op:   opLookup,
		name: name,
	})
	if err != nil {
		return "", err
	}
	return answers[0].Value, nil
}

// Reverse resolves a literal IP address to its PTR name.
func (e *Engine) Reverse(ctx context.Context, address string) (string, error) {
	answers, err := e.execute(ctx, resolveCmd{
		id:   uuid.NewString(),
		op:   opReverse,
		name: address,
	})
	if err != nil {
		return "", err
	}
	return answers[0].Value, nil
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		InFlight: e.client.InFlight(),
		Served:   e.served.Load(),
	}
}

func (e *Engine) execute(ctx context.Context, cmd resolveCmd) ([]Answer, error) {
	cmd.reply = make(chan result, 1) // buffered so a late completion never blocks the client loop

	select {
	case e.cmdChan <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r.answers, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runLoop is the only goroutine that enters the client, which keeps
// concurrent API handlers from tripping its ownership guard.
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()

	log.Info("engine: runLoop starting")
	for {
		select {
		case cmd := <-e.cmdChan:
			if err := e.dispatch(cmd); err != nil {
				cmd.reply <- result{err: err}
			}
		case <-ctx.Done():
			log.Info("engine: runLoop stopping")
			return
		}
	}
}

// dispatch issues the query. Completions fire later on the client's
// loop goroutine and land in cmd.reply; a synchronous failure is
// returned instead.
func (e *Engine) dispatch(cmd resolveCmd) error {
	log.Debug("engine: resolving",
		"request_id", cmd.id,
		"op", cmd.op,
		"type", cmd.rtype,
		"name", cmd.name,
	)

	switch cmd.op {
	case opLookup:
		return e.client.Lookup(cmd.name, e.singleReply(cmd, "A"))
	case opReverse:
		return e.client.ReverseLookup(cmd.name, e.singleReply(cmd, "PTR"))
	case opResolve:
		return e.dispatchResolve(cmd)
	default:
		return fmt.Errorf("unknown operation %q", cmd.op)
	}
}

func (e *Engine) dispatchResolve(cmd resolveCmd) error {
	switch cmd.rtype {
	case "A":
		return e.client.ResolveA(cmd.name, e.valuesReply(cmd))
	case "AAAA":
		return e.client.ResolveAAAA(cmd.name, e.valuesReply(cmd))
	case "CNAME":
		return e.client.ResolveCNAME(cmd.name, e.valuesReply(cmd))
	case "TXT":
		return e.client.ResolveTXT(cmd.name, e.valuesReply(cmd))
	case "NS":
		return e.client.ResolveNS(cmd.name, e.valuesReply(cmd))
	case "PTR":
		return e.client.ResolvePTR(cmd.name, e.singleReply(cmd, "PTR"))
	case "MX":
		return e.client.ResolveMX(cmd.name, func(records []dnsclient.MxRecord, err error) {
			if err != nil {
				e.fail(cmd, err)
				return
			}
			answers := make([]Answer, 0, len(records))
			for _, r := range records {
				answers = append(answers, Answer{
					Type:       cmd.rtype,
					Value:      r.Name,
					Preference: r.Preference,
				})
			}
			e.succeed(cmd, answers)
		})
	case "SRV":
		return e.client.ResolveSRV(cmd.name, func(records []dnsclient.SrvRecord, err error) {
			if err != nil {
				e.fail(cmd, err)
				return
			}
			answers := make([]Answer, 0, len(records))
			for _, r := range records {
				answers = append(answers, Answer{
					Type:     cmd.rtype,
					Value:    r.Target,
					Priority: r.Priority,
					Weight:   r.Weight,
					Port:     r.Port,
					Target:   r.Target,
				})
			}
			e.succeed(cmd, answers)
		})
	default:
		return fmt.Errorf("unsupported record type %q", cmd.rtype)
	}
}

// valuesReply adapts a []string completion into answers of cmd's type.
func (e *Engine) valuesReply(cmd resolveCmd) func([]string, error) {
	return func(values []string, err error) {
		if err != nil {
			e.fail(cmd, err)
			return
		}
		answers := make([]Answer, 0, len(values))
		for _, v := range values {
			answers = append(answers, Answer{Type: cmd.rtype, Value: v})
		}
		e.succeed(cmd, answers)
	}
}

// singleReply adapts a single-string completion into one answer.
func (e *Engine) singleReply(cmd resolveCmd, rtype string) func(string, error) {
	return func(value string, err error) {
		if err != nil {
			e.fail(cmd, err)
			return
		}
		e.succeed(cmd, []Answer{{Type: rtype, Value: value}})
	}
}

func (e *Engine) succeed(cmd resolveCmd, answers []Answer) {
	e.served.Inc()
	log.Debug("engine: resolved",
		"request_id", cmd.id,
		"answers", len(answers),
	)
	cmd.reply <- result{answers: answers}
}

func (e *Engine) fail(cmd resolveCmd, err error) {
	e.served.Inc()
	log.Debug("engine: resolution failed",
		"request_id", cmd.id,
		"error", err.Error(),
	)
	cmd.reply <- result{err: err}
}

type operation string

const (
	opResolve operation = "resolve"
	opLookup  operation = "lookup"
	opReverse operation = "reverse"
)

type resolveCmd struct {
	id    string
	op    operation
	rtype string
	name  string
	reply chan result
}

type result struct {
	answers []Answer
	err     error
}

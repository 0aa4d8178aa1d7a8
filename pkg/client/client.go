// Package client is a thin convenience wrapper for CLI tools to call
// the dnsqd daemon's JSON API over a Unix domain socket. It re-exports
// the DTOs from pkg/api so callers get strongly typed results instead
// of generic maps.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/lc/dnsq/internal/engine"
	"github.com/lc/dnsq/internal/socket"
	"github.com/lc/dnsq/pkg/api"
)

// Client holds an http.Client wired to a Unix socket.
type Client struct {
	hc   *http.Client
	base string // dummy scheme+host for Request.URL (http://unix)
}

// New returns a Client that dials the given Unix-domain socket path,
// waiting briefly for the daemon to come up if it just started.
func New(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		return socket.ConnectContext(ctx, socketPath)
	}
	tr := &http.Transport{DialContext: dial}
	return &Client{hc: &http.Client{Transport: tr}, base: "http://unix"}
}

// --------------------------- commands ------------------------------

// Resolve returns every record of the given type for name.
func (c *Client) Resolve(ctx context.Context, rtype, name string) ([]engine.Answer, error) {
	var out api.ResolveResponse
	err := c.post(ctx, "/v1/resolve", api.ResolveRequest{Name: name, Type: rtype}, &out)
	return out.Answers, err
}

// Lookup returns the first address of any family for name.
func (c *Client) Lookup(ctx context.Context, name string) (string, error) {
	var out api.LookupResponse
	err := c.post(ctx, "/v1/lookup", api.LookupRequest{Name: name}, &out)
	return out.Address, err
}

// Reverse returns the PTR name for a literal IP address.
func (c *Client) Reverse(ctx context.Context, address string) (string, error) {
	var out api.ReverseResponse
	err := c.post(ctx, "/v1/reverse", api.ReverseRequest{Address: address}, &out)
	return out.Name, err
}

// Status retrieves the current status of the daemon.
func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.get(ctx, "/v1/status", &out)
	return out, err
}

// --------------------------- HTTP helpers --------------------------

func (c *Client) post(ctx context.Context, path string, payload, v any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.base+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return daemonError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return daemonError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// daemonError surfaces the daemon's error text, falling back to the
// HTTP status when the body is empty.
func daemonError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("daemon: %s", msg)
}

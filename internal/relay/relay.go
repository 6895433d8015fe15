// Package relay implements the broadcast-fallback chain shared by the Setup
// and Claim Engines: try a primary relay, then an alternate relay tolerant of
// non-standard scripts, and if both fail return the serialized transaction
// hex for the caller to submit manually rather than fail hard.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBroadcastRejected marks a relay that rejected or could not reach a
// transaction; it is always recoverable by falling through the chain.
var ErrBroadcastRejected = errors.New("relay: broadcast rejected")

// Endpoint is one relay the chain will try, in order.
type Endpoint struct {
	Name string
	URL  string
}

// Chain is an ordered sequence of relays tried in turn.
type Chain struct {
	Endpoints  []Endpoint
	HTTPClient *http.Client
}

// DefaultChain returns the primary mempool.space relay followed by an
// alternate relay (named "alternate") tried when the primary rejects the
// transaction, for example a non-standard IfElse spend.
func DefaultChain(testnet bool) *Chain {
	primary := "https://mempool.space/api/tx"
	alternate := "https://blockstream.info/api/tx"
	if testnet {
		primary = "https://mempool.space/testnet/api/tx"
		alternate = "https://blockstream.info/testnet/api/tx"
	}
	return &Chain{
		Endpoints: []Endpoint{
			{Name: "primary", URL: primary},
			{Name: "alternate", URL: alternate},
		},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Result reports what the broadcast chain actually did.
type Result struct {
	// Broadcast is true if some relay in the chain accepted the transaction.
	Broadcast bool
	// Via names the relay that accepted it, when Broadcast is true.
	Via string
	// TxID is the relay-reported transaction id, when Broadcast is true.
	TxID string
	// RawHex is always populated so the caller can submit manually on
	// total failure, or simply log what was sent.
	RawHex string
}

// Send tries each endpoint in order and stops at the first success. If every
// endpoint fails (or none is configured), it returns a Result with
// Broadcast=false and RawHex set together with an error wrapping
// ErrBroadcastRejected; the Result is always non-nil, so the caller can still
// emit the hex for manual submission.
func (c *Chain) Send(ctx context.Context, rawHex string) (*Result, error) {
	result := &Result{RawHex: rawHex}

	var lastErr error
	for _, ep := range c.Endpoints {
		txid, err := c.broadcastOne(ctx, ep, rawHex)
		if err == nil {
			result.Broadcast = true
			result.Via = ep.Name
			result.TxID = txid
			return result, nil
		}
		lastErr = fmt.Errorf("%s: %w", ep.Name, err)
	}

	if lastErr != nil {
		return result, fmt.Errorf("%w: all relays failed, last error: %v", ErrBroadcastRejected, lastErr)
	}
	return result, fmt.Errorf("%w: no relays configured", ErrBroadcastRejected)
}

func (c *Chain) broadcastOne(ctx context.Context, ep Endpoint, rawHex string) (string, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(rawHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

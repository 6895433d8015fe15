// Package oracle implements the Oracle Client: a thin, uncached HTTP reader
// of per-fact outcome data (the two outcome public keys, the declared winner
// if any, and the winning side's private key once published).
package oracle

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ErrOracleUnavailable marks a recoverable transport failure: the caller may
// retry.
var ErrOracleUnavailable = errors.New("oracle: unavailable")

// ErrOracleMalformed marks a fatal, non-retryable parse failure: the oracle
// responded but the body did not contain a well-formed fact record.
var ErrOracleMalformed = errors.New("oracle: malformed response")

// Fact is the parsed, decoded record for one oracle-adjudicated question.
type Fact struct {
	YesPub []byte
	NoPub  []byte
	// Winner is "Yes", "No", or "" when undecided.
	Winner string
	// WinnerPriv is the winning side's scalar once published, or nil.
	WinnerPriv []byte
}

// Decided reports whether the oracle has published a verdict and the
// matching private key.
func (f *Fact) Decided() bool {
	return f.Winner != "" && len(f.WinnerPriv) > 0
}

// wireFact mirrors the oracle's JSON field names exactly (§6.1); additional
// fields in the response are ignored by encoding/json's default behavior.
type wireFact struct {
	YesPubkey     string  `json:"yes_pubkey"`
	NoPubkey      string  `json:"no_pubkey"`
	Winner        *string `json:"winner"`
	WinnerPrivkey *string `json:"winner_privkey"`
}

// Client is a single-fact-at-a-time HTTP reader against an oracle's base
// URL, e.g. "https://www.realitykeys.com/api/v1".
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient constructs a Client against baseURL using http.DefaultClient.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

// Fetch performs a single GET against
// <BaseURL>/fact/<factID>/?accept_terms_of_service=current and parses the
// response. It performs no caching — every call is a fresh read.
func (c *Client) Fetch(ctx context.Context, factID int64) (*Fact, error) {
	if factID <= 0 {
		return nil, fmt.Errorf("oracle: fact id must be positive, got %d", factID)
	}

	endpoint := fmt.Sprintf("%s/fact/%d/", c.BaseURL, factID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("oracle: build request url: %w", err)
	}
	q := u.Query()
	q.Set("accept_terms_of_service", "current")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: build request: %w", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %s", ErrOracleUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrOracleMalformed, resp.Status)
	}

	var wire wireFact
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleMalformed, err)
	}

	return decodeFact(&wire)
}

func decodeFact(w *wireFact) (*Fact, error) {
	yesPub, err := hex.DecodeString(w.YesPubkey)
	if err != nil || len(yesPub) == 0 {
		return nil, fmt.Errorf("%w: invalid yes_pubkey", ErrOracleMalformed)
	}
	noPub, err := hex.DecodeString(w.NoPubkey)
	if err != nil || len(noPub) == 0 {
		return nil, fmt.Errorf("%w: invalid no_pubkey", ErrOracleMalformed)
	}

	fact := &Fact{YesPub: yesPub, NoPub: noPub}

	if w.Winner != nil {
		switch *w.Winner {
		case "Yes", "No":
			fact.Winner = *w.Winner
		default:
			return nil, fmt.Errorf("%w: winner must be Yes, No, or null, got %q", ErrOracleMalformed, *w.Winner)
		}
	}

	if w.WinnerPrivkey != nil && *w.WinnerPrivkey != "" {
		priv, err := hex.DecodeString(*w.WinnerPrivkey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid winner_privkey", ErrOracleMalformed)
		}
		fact.WinnerPriv = priv
	}

	return fact, nil
}

// FactIDFromString parses a decimal fact id, surfacing the same error the
// CLI should treat as InputValidation.
func FactIDFromString(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("oracle: invalid fact id %q: %w", s, err)
	}
	return id, nil
}

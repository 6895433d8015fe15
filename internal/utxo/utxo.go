// Package utxo implements the UTXO Source: a single abstract lookup for "an
// unspent output at this address funding this stake", backed either by a
// caller-supplied override list (deterministic, for tests and scripted
// handshakes) or a live mempool.space-compatible block explorer.
package utxo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oraclewager/realitywager/pkg/helpers"
)

// UTXO is one candidate unspent output.
type UTXO struct {
	Address string
	TxID    string
	Vout    uint32
	Value   int64
}

// Source abstracts "unspent outputs for address A" behind one operation so
// the engines never know whether they are reading an override list or a
// live chain query.
type Source interface {
	// Find returns at most one UTXO at address whose value lies in
	// [stake+minFee, stake+maxFee] (or [stake+minFee, +inf) if maxFee <= 0).
	// strict mirrors the EccSum-mode rule: when more than one candidate
	// qualifies, that counts as "none found", not an error, because two
	// independently-building parties could not otherwise agree on which
	// UTXO is being spent.
	Find(ctx context.Context, address string, stake, minFee, maxFee int64, strict bool) (*UTXO, error)
}

// ParseOverride parses one "address:txid:vout:value" string.
func ParseOverride(s string) (UTXO, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return UTXO{}, fmt.Errorf("utxo: malformed override %q, want address:txid:vout:value", s)
	}
	vout, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return UTXO{}, fmt.Errorf("utxo: malformed vout in override %q: %w", s, err)
	}
	value, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return UTXO{}, fmt.Errorf("utxo: malformed value in override %q: %w", s, err)
	}
	return UTXO{Address: parts[0], TxID: parts[1], Vout: uint32(vout), Value: value}, nil
}

// ParseOverrides parses a list of "address:txid:vout:value" strings.
func ParseOverrides(raw []string) ([]UTXO, error) {
	out := make([]UTXO, 0, len(raw))
	for _, s := range raw {
		u, err := ParseOverride(s)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// OverrideSource resolves Find purely against a fixed, caller-supplied list
// — the "deterministic testing" backing named in §4.3.
type OverrideSource struct {
	UTXOs []UTXO
}

// NewOverrideSource builds an OverrideSource from raw "a:txid:vout:value"
// strings.
func NewOverrideSource(raw []string) (*OverrideSource, error) {
	utxos, err := ParseOverrides(raw)
	if err != nil {
		return nil, err
	}
	return &OverrideSource{UTXOs: utxos}, nil
}

func inBand(value, stake, minFee, maxFee int64) bool {
	if value < stake+minFee {
		return false
	}
	if maxFee > 0 && value > stake+maxFee {
		return false
	}
	return true
}

// Find implements Source over the fixed list. An override entry with a
// blank address field matches any address — the override's own txid:vout
// already pins down exactly which output it is, so the address field is
// only ever a convenience check, never load-bearing (mirrored from the
// reference client's unspent_outputs(), which treats "" the same way).
func (s *OverrideSource) Find(ctx context.Context, address string, stake, minFee, maxFee int64, strict bool) (*UTXO, error) {
	var candidates []UTXO
	for _, u := range s.UTXOs {
		if u.Address != "" && u.Address != address {
			continue
		}
		if !inBand(u.Value, stake, minFee, maxFee) {
			continue
		}
		candidates = append(candidates, u)
	}

	return selectCandidate(candidates, strict), nil
}

// selectCandidate applies the strictness rule and, when more than one
// candidate qualifies and strictness is off, breaks the tie deterministically
// by txid so two independently-built candidate lists (override file drawn up
// by each party, or a live explorer response whose ordering the API does not
// guarantee) agree on the same UTXO.
func selectCandidate(candidates []UTXO, strict bool) *UTXO {
	if len(candidates) == 0 {
		return nil
	}
	if strict && len(candidates) > 1 {
		return nil
	}
	result := candidates[0]
	for _, c := range candidates[1:] {
		if helpers.CompareBytes([]byte(c.TxID), []byte(result.TxID)) < 0 {
			result = c
		}
	}
	return &result
}

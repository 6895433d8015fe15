// Package txutil holds small transaction-plumbing helpers shared by the
// Setup, Claim, and Refund engines — wrapping txid parsing and address-to-
// scriptPubKey conversion in one place instead of duplicating them per
// engine.
package txutil

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// ChainHashFromTxID parses a big-endian hex txid into a chainhash.Hash. The
// txid must be exactly 64 hex characters.
func ChainHashFromTxID(txid string) (*chainhash.Hash, error) {
	if len(txid) != chainhash.MaxHashStringSize {
		return nil, fmt.Errorf("txutil: invalid txid %q: want %d hex characters", txid, chainhash.MaxHashStringSize)
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("txutil: invalid txid %q: %w", txid, err)
	}
	return hash, nil
}

// AddressToScript decodes a base58check address and returns its
// scriptPubKey, for use as either a transaction output or the prevout script
// an input is signed against.
func AddressToScript(addr string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("txutil: decode address %q: %w", addr, err)
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, fmt.Errorf("txutil: build script for %q: %w", addr, err)
	}
	return script, nil
}

// NetParams returns mainnet or testnet3 chain parameters.
func NetParams(testnet bool) *chaincfg.Params {
	if testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

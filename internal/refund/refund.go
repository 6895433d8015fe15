// Package refund implements the Refund Engine: a plain one-input payment
// from a participant's temporary address, used when a contract is
// abandoned before both sides fund it. It has no oracle interaction.
package refund

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/oraclewager/realitywager/internal/keys"
	"github.com/oraclewager/realitywager/internal/relay"
	"github.com/oraclewager/realitywager/internal/txutil"
	"github.com/oraclewager/realitywager/internal/utxo"
)

// Params are the inputs to one Refund call.
type Params struct {
	LocalPriv   *btcec.PrivateKey
	Destination string
	Amount      int64
	Fee         int64
	UTXOSource  utxo.Source
	Testnet     bool
	NoBroadcast bool
	Relay       *relay.Chain
}

// Result is what one Refund call produced.
type Result struct {
	Tx        *wire.MsgTx
	RawHex    string
	Broadcast *relay.Result
}

// Run locates the local temp address's UTXO, pays amount to destination
// (plus change back to self, if any), and signs with the local key.
func Run(ctx context.Context, p Params) (*Result, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("refund: amount must be positive")
	}

	localPub := keys.PublicKeyUncompressed(p.LocalPriv)
	localAddr, err := keys.Address(localPub, p.Testnet)
	if err != nil {
		return nil, err
	}

	fundingUTXO, err := p.UTXOSource.Find(ctx, localAddr, p.Amount, p.Fee, 0, false)
	if err != nil {
		return nil, fmt.Errorf("refund: locate utxo: %w", err)
	}
	if fundingUTXO == nil {
		return nil, fmt.Errorf("refund: no suitable utxo at %s", localAddr)
	}

	netParams := txutil.NetParams(p.Testnet)
	destScript, err := txutil.AddressToScript(p.Destination, netParams)
	if err != nil {
		return nil, err
	}
	localPkScript, err := txutil.AddressToScript(localAddr, netParams)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	hash, err := txutil.ChainHashFromTxID(fundingUTXO.TxID)
	if err != nil {
		return nil, err
	}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, fundingUTXO.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(p.Amount, destScript))

	change := fundingUTXO.Value - p.Amount - p.Fee
	if change < 0 {
		return nil, fmt.Errorf("refund: utxo value %d insufficient for amount %d + fee %d", fundingUTXO.Value, p.Amount, p.Fee)
	}
	if change > 0 {
		tx.AddTxOut(wire.NewTxOut(change, localPkScript))
	}

	sigScript, err := txscript.SignatureScript(tx, 0, localPkScript, txscript.SigHashAll, p.LocalPriv, false)
	if err != nil {
		return nil, fmt.Errorf("refund: sign input: %w", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("refund: serialize tx: %w", err)
	}
	rawHex := fmt.Sprintf("%x", buf.Bytes())

	result := &Result{Tx: tx, RawHex: rawHex}

	if !p.NoBroadcast && p.Relay != nil {
		broadcast, err := p.Relay.Send(ctx, rawHex)
		result.Broadcast = broadcast
		if err != nil {
			return result, nil
		}
	}

	return result, nil
}

// Package setup implements the Setup Engine: the two-party handshake that
// assembles the funding transaction, verifies an incoming partial
// transaction against an independently computed reference, signs the local
// party's input, and emits either a further-partial or fully-signed
// transaction.
package setup

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/oraclewager/realitywager/internal/contract"
	"github.com/oraclewager/realitywager/internal/keys"
	"github.com/oraclewager/realitywager/internal/oracle"
	"github.com/oraclewager/realitywager/internal/relay"
	"github.com/oraclewager/realitywager/internal/txutil"
	"github.com/oraclewager/realitywager/internal/utxo"
	"github.com/oraclewager/realitywager/pkg/helpers"
)

// Role is which side of the wager the local party plays.
type Role int

const (
	RoleYes Role = iota
	RoleNo
)

func (r Role) String() string {
	if r == RoleYes {
		return "Yes"
	}
	return "No"
}

// ContractKeys pins down the contract both sides must agree on bit-for-bit.
type ContractKeys struct {
	YesWinnerPub []byte
	YesStake     int64
	NoWinnerPub  []byte
	NoStake      int64
	FactID       int64
	Mode         contract.Mode
}

// FundingReport is returned, not as an error, when a required UTXO has not
// yet been supplied — it names the address and role that must be funded.
type FundingReport struct {
	Role    Role
	Address string
	Stake   int64
}

// Params are the inputs to one Setup call.
type Params struct {
	Keys        ContractKeys
	LocalPriv   *btcec.PrivateKey
	Oracle      *oracle.Client
	UTXOSource  utxo.Source
	ExistingTx  []byte // serialized partially-signed FundingTx, or nil
	MinFee      int64
	MaxFee      int64
	Testnet     bool
	NoBroadcast bool
	Relay       *relay.Chain
}

// Result is what one Setup call produced.
type Result struct {
	// FundingNeeded is set instead of Tx when a required UTXO is missing.
	FundingNeeded *FundingReport

	Tx                *wire.MsgTx
	RawHex            string
	P2SHAddress       string
	SignaturesNeeded  int
	SignaturesDone    int
	FullySigned       bool
	Broadcast         *relay.Result
}

// Run executes the full eight-step Setup algorithm described in §4.5.
func Run(ctx context.Context, p Params) (*Result, error) {
	localPub := keys.PublicKeyUncompressed(p.LocalPriv)

	// Step 1: role detection.
	var role Role
	switch {
	case helpers.BytesEqual(localPub, p.Keys.YesWinnerPub):
		role = RoleYes
	case helpers.BytesEqual(localPub, p.Keys.NoWinnerPub):
		role = RoleNo
	default:
		return nil, fmt.Errorf("setup: local public key matches neither Yes nor No winner key")
	}

	if p.Keys.YesStake < 0 || p.Keys.NoStake < 0 {
		return nil, fmt.Errorf("setup: stakes must be non-negative")
	}
	totalStake := p.Keys.YesStake + p.Keys.NoStake
	if totalStake <= 0 {
		return nil, fmt.Errorf("setup: total stake must be positive")
	}

	// Step 2: oracle fetch.
	fact, err := p.Oracle.Fetch(ctx, p.Keys.FactID)
	if err != nil {
		return nil, err
	}

	netParams := txutil.NetParams(p.Testnet)

	yesAddr, err := keys.Address(p.Keys.YesWinnerPub, p.Testnet)
	if err != nil {
		return nil, fmt.Errorf("setup: yes address: %w", err)
	}
	noAddr, err := keys.Address(p.Keys.NoWinnerPub, p.Testnet)
	if err != nil {
		return nil, fmt.Errorf("setup: no address: %w", err)
	}

	strict := p.Keys.Mode == contract.EccSum

	// Step 3: per-stake UTXO lookup.
	var yesUTXO, noUTXO *utxo.UTXO
	if p.Keys.YesStake > 0 {
		yesUTXO, err = p.UTXOSource.Find(ctx, yesAddr, p.Keys.YesStake, p.MinFee, p.MaxFee, strict)
		if err != nil {
			return nil, fmt.Errorf("setup: locate yes utxo: %w", err)
		}
		if yesUTXO == nil {
			return &Result{FundingNeeded: &FundingReport{Role: RoleYes, Address: yesAddr, Stake: p.Keys.YesStake}}, nil
		}
	}
	if p.Keys.NoStake > 0 {
		noUTXO, err = p.UTXOSource.Find(ctx, noAddr, p.Keys.NoStake, p.MinFee, p.MaxFee, strict)
		if err != nil {
			return nil, fmt.Errorf("setup: locate no utxo: %w", err)
		}
		if noUTXO == nil {
			return &Result{FundingNeeded: &FundingReport{Role: RoleNo, Address: noAddr, Stake: p.Keys.NoStake}}, nil
		}
	}

	// Step 4: redeem script + P2SH address.
	redeemScript, err := contract.BuildRedeemScript(p.Keys.Mode, contract.Keys{
		YesWinnerPub: p.Keys.YesWinnerPub,
		NoWinnerPub:  p.Keys.NoWinnerPub,
		YesOraclePub: fact.YesPub,
		NoOraclePub:  fact.NoPub,
	})
	if err != nil {
		return nil, fmt.Errorf("setup: build redeem script: %w", err)
	}
	p2shAddr, err := contract.P2SHAddress(redeemScript, p.Testnet)
	if err != nil {
		return nil, err
	}

	// Step 5: assemble FundingTx, Yes input then No input, in that order.
	tx := wire.NewMsgTx(wire.TxVersion)
	localIndex := -1
	idx := 0
	if yesUTXO != nil {
		if err := addInput(tx, yesUTXO); err != nil {
			return nil, err
		}
		if role == RoleYes {
			localIndex = idx
		}
		idx++
	}
	if noUTXO != nil {
		if err := addInput(tx, noUTXO); err != nil {
			return nil, err
		}
		if role == RoleNo {
			localIndex = idx
		}
		idx++
	}
	if localIndex < 0 {
		return nil, fmt.Errorf("setup: local stake is zero, nothing to sign")
	}

	p2shScript, err := txutil.AddressToScript(p2shAddr, netParams)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(totalStake, p2shScript))

	// Step 6: handshake verification against an incoming partial tx.
	signaturesDone := 0
	if p.ExistingTx != nil {
		existing := wire.NewMsgTx(wire.TxVersion)
		if err := existing.Deserialize(bytes.NewReader(p.ExistingTx)); err != nil {
			return nil, fmt.Errorf("setup: deserialize counterpart tx: %w", err)
		}
		if !equalIgnoringInputScripts(tx, existing) {
			return nil, fmt.Errorf("setup: handshake mismatch — counterpart's transaction does not match the locally built reference")
		}
		// The counterpart's signed input carries a non-empty scriptSig;
		// copy it across so the emitted transaction carries it alongside the
		// local signature added below.
		for i := range tx.TxIn {
			if i != localIndex && len(existing.TxIn[i].SignatureScript) > 0 {
				tx.TxIn[i].SignatureScript = existing.TxIn[i].SignatureScript
				signaturesDone++
			}
		}
	}

	// Step 7: sign the locally owned input.
	localAddr, err := keys.Address(localPub, p.Testnet)
	if err != nil {
		return nil, err
	}
	localPkScript, err := txutil.AddressToScript(localAddr, netParams)
	if err != nil {
		return nil, err
	}
	sigScript, err := txscript.SignatureScript(tx, localIndex, localPkScript, txscript.SigHashAll, p.LocalPriv, false)
	if err != nil {
		return nil, fmt.Errorf("setup: sign local input: %w", err)
	}
	tx.TxIn[localIndex].SignatureScript = sigScript
	signaturesDone++

	signaturesNeeded := 0
	if p.Keys.YesStake > 0 {
		signaturesNeeded++
	}
	if p.Keys.NoStake > 0 {
		signaturesNeeded++
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("setup: serialize funding tx: %w", err)
	}
	rawHex := fmt.Sprintf("%x", buf.Bytes())

	result := &Result{
		Tx:               tx,
		RawHex:           rawHex,
		P2SHAddress:      p2shAddr,
		SignaturesNeeded: signaturesNeeded,
		SignaturesDone:   signaturesDone,
		FullySigned:      signaturesDone >= signaturesNeeded,
	}

	// Step 8: conditional broadcast.
	if result.FullySigned && !p.NoBroadcast && p.Relay != nil {
		broadcast, err := p.Relay.Send(ctx, rawHex)
		result.Broadcast = broadcast
		if err != nil {
			return result, nil // BroadcastRejected: emit hex, not a hard failure.
		}
	}

	return result, nil
}

func addInput(tx *wire.MsgTx, u *utxo.UTXO) error {
	hash, err := txutil.ChainHashFromTxID(u.TxID)
	if err != nil {
		return err
	}
	outpoint := wire.NewOutPoint(hash, u.Vout)
	tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	return nil
}

// equalIgnoringInputScripts clears the SignatureScript field on copies of
// both transactions and compares the resulting serializations, per the
// handshake-commutativity property: two independently built FundingTxs must
// be byte-identical once the per-input script fields are cleared.
func equalIgnoringInputScripts(a, b *wire.MsgTx) bool {
	ca, cb := a.Copy(), b.Copy()
	for _, in := range ca.TxIn {
		in.SignatureScript = nil
	}
	for _, in := range cb.TxIn {
		in.SignatureScript = nil
	}
	var bufA, bufB bytes.Buffer
	if err := ca.Serialize(&bufA); err != nil {
		return false
	}
	if err := cb.Serialize(&bufB); err != nil {
		return false
	}
	return bytes.Equal(bufA.Bytes(), bufB.Bytes())
}

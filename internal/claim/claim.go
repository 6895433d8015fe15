// Package claim implements the Claim Engine: the winner-side spend of a
// P2SH funding output, producing the witness appropriate to the contract's
// Mode and broadcasting it with fallback.
package claim

import (
	"bytes"
	"context"
	"errors"
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

// ErrUndecided marks an oracle fact that has not yet published a winner and
// matching private key — not a fatal error, just "nothing to claim yet".
var ErrUndecided = errors.New("claim: oracle has not yet published a winner")

// ErrNothingToSpend marks a P2SH address with no funding UTXO.
var ErrNothingToSpend = errors.New("claim: nothing to spend at contract address")

// ErrWinnerMismatch (EccSum mode only) marks a caller whose compound key
// does not match the winning compound public key — i.e. they did not win.
var ErrWinnerMismatch = errors.New("claim: are you sure you won?")

// Params are the inputs to one Claim call.
type Params struct {
	FactID       int64
	YesWinnerPub []byte
	NoWinnerPub  []byte
	LocalPriv    *btcec.PrivateKey
	Fee          int64
	Destination  string // empty means the caller's own address
	Mode         contract.Mode
	Oracle       *oracle.Client
	UTXOSource   utxo.Source
	Testnet      bool
	NoBroadcast  bool
	Relay        *relay.Chain
}

// Result is what one Claim call produced.
type Result struct {
	Tx          *wire.MsgTx
	RawHex      string
	P2SHAddress string
	Broadcast   *relay.Result
}

// Run executes the six-step Claim algorithm described in §4.6.
func Run(ctx context.Context, p Params) (*Result, error) {
	// Step 1: oracle fetch and undecided/unpublished guard.
	fact, err := p.Oracle.Fetch(ctx, p.FactID)
	if err != nil {
		return nil, err
	}
	if !fact.Decided() {
		return nil, ErrUndecided
	}

	// Step 2: rebuild the redeem script and P2SH address.
	redeemScript, err := contract.BuildRedeemScript(p.Mode, contract.Keys{
		YesWinnerPub: p.YesWinnerPub,
		NoWinnerPub:  p.NoWinnerPub,
		YesOraclePub: fact.YesPub,
		NoOraclePub:  fact.NoPub,
	})
	if err != nil {
		return nil, fmt.Errorf("claim: build redeem script: %w", err)
	}
	p2shAddr, err := contract.P2SHAddress(redeemScript, p.Testnet)
	if err != nil {
		return nil, err
	}

	// Step 3: locate the funding UTXO at the contract address.
	fundingUTXO, err := p.UTXOSource.Find(ctx, p2shAddr, 0, 0, 0, false)
	if err != nil {
		return nil, fmt.Errorf("claim: locate funding utxo: %w", err)
	}
	if fundingUTXO == nil {
		return nil, ErrNothingToSpend
	}

	destination := p.Destination
	if destination == "" {
		localPub := keys.PublicKeyUncompressed(p.LocalPriv)
		destination, err = keys.Address(localPub, p.Testnet)
		if err != nil {
			return nil, err
		}
	}

	// Step 4: one-input, one-output ClaimTx paying value-fee to destination.
	netParams := txutil.NetParams(p.Testnet)
	destScript, err := txutil.AddressToScript(destination, netParams)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	hash, err := txutil.ChainHashFromTxID(fundingUTXO.TxID)
	if err != nil {
		return nil, err
	}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, fundingUTXO.Vout), nil, nil))
	payout := fundingUTXO.Value - p.Fee
	if payout <= 0 {
		return nil, fmt.Errorf("claim: fee %d exceeds funding value %d", p.Fee, fundingUTXO.Value)
	}
	tx.AddTxOut(wire.NewTxOut(payout, destScript))

	// Step 5: witness construction, per mode.
	var scriptSig []byte
	switch p.Mode {
	case contract.EccSum:
		scriptSig, err = buildEccSumWitness(tx, redeemScript, fact, p)
	case contract.IfElse:
		scriptSig, err = buildIfElseWitness(tx, redeemScript, fact, p)
	default:
		err = fmt.Errorf("claim: unknown mode %v", p.Mode)
	}
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("claim: serialize claim tx: %w", err)
	}
	rawHex := fmt.Sprintf("%x", buf.Bytes())

	result := &Result{Tx: tx, RawHex: rawHex, P2SHAddress: p2shAddr}

	// Step 6: broadcast with fallback.
	if !p.NoBroadcast && p.Relay != nil {
		broadcast, err := p.Relay.Send(ctx, rawHex)
		result.Broadcast = broadcast
		if err != nil {
			return result, nil
		}
	}

	return result, nil
}

// buildEccSumWitness computes the compound private key, verifies it matches
// the compound public key for the declared winning side (fatal mismatch
// otherwise — this is where a losing-side claim attempt is caught), and
// wraps a single signature as OP_0 <sig> <redeemScript>.
func buildEccSumWitness(tx *wire.MsgTx, redeemScript []byte, fact *oracle.Fact, p Params) ([]byte, error) {
	localPriv := p.LocalPriv.Serialize()
	compoundScalar, err := contract.ScalarAdd(localPriv, fact.WinnerPriv)
	if err != nil {
		return nil, fmt.Errorf("claim: compound private key: %w", err)
	}
	compoundPriv, compoundPub := btcec.PrivKeyFromBytes(compoundScalar)

	var winnerPub, oracleWinnerPub []byte
	if fact.Winner == "Yes" {
		winnerPub, oracleWinnerPub = p.YesWinnerPub, fact.YesPub
	} else {
		winnerPub, oracleWinnerPub = p.NoWinnerPub, fact.NoPub
	}
	expectedCompound, err := contract.PointAdd(winnerPub, oracleWinnerPub)
	if err != nil {
		return nil, fmt.Errorf("claim: expected compound key: %w", err)
	}
	if !helpers.ConstantTimeCompare(compoundPub.SerializeUncompressed(), expectedCompound) {
		return nil, ErrWinnerMismatch
	}

	sig, err := txscript.RawTxInSignature(tx, 0, redeemScript, txscript.SigHashAll, compoundPriv)
	if err != nil {
		return nil, fmt.Errorf("claim: sign claim tx: %w", err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(sig)
	builder.AddData(redeemScript)
	return builder.Script()
}

// buildIfElseWitness signs once with the local key and once with the
// oracle's published winning scalar, and selects the matching branch with
// OP_TRUE (Yes) or OP_FALSE (No). A losing-side caller cannot produce this —
// they lack the oracle's private key for their branch — so IfElse mode has
// no equivalent pre-broadcast mismatch check; the relay itself rejects it.
func buildIfElseWitness(tx *wire.MsgTx, redeemScript []byte, fact *oracle.Fact, p Params) ([]byte, error) {
	oraclePriv, _ := btcec.PrivKeyFromBytes(fact.WinnerPriv)

	localSig, err := txscript.RawTxInSignature(tx, 0, redeemScript, txscript.SigHashAll, p.LocalPriv)
	if err != nil {
		return nil, fmt.Errorf("claim: sign with local key: %w", err)
	}
	oracleSig, err := txscript.RawTxInSignature(tx, 0, redeemScript, txscript.SigHashAll, oraclePriv)
	if err != nil {
		return nil, fmt.Errorf("claim: sign with oracle key: %w", err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(localSig)
	builder.AddData(oracleSig)
	if fact.Winner == "Yes" {
		builder.AddOp(txscript.OP_TRUE)
	} else {
		builder.AddOp(txscript.OP_FALSE)
	}
	builder.AddData(redeemScript)
	return builder.Script()
}

// Package contract builds the redemption script that binds a participant's
// key to the oracle's key for a given outcome, in either of the two supported
// modes, and derives the pay-to-script-hash address for that script.
package contract

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/oraclewager/realitywager/pkg/helpers"
)

// Mode selects how the redemption script binds participant keys to oracle
// keys. EccSum yields a standard 1-of-2 multisig over two compound points;
// IfElse yields a non-standard OP_IF/OP_ELSE disjunction between two plain
// 2-of-2 multisig branches.
type Mode int

const (
	EccSum Mode = iota
	IfElse
)

func (m Mode) String() string {
	if m == EccSum {
		return "ecc-sum"
	}
	return "if-else"
}

// Keys holds the four public keys a redeem script is built from: the two
// participants' winner-side keys and the oracle's two outcome keys.
// All keys are uncompressed secp256k1 points (65 bytes, 0x04 prefix),
// matching the Key Material Manager's output.
type Keys struct {
	YesWinnerPub []byte
	NoWinnerPub  []byte
	YesOraclePub []byte
	NoOraclePub  []byte
}

// PointAdd adds two uncompressed secp256k1 points and returns the sum,
// uncompressed. Used by EccSum mode to combine a participant's winner-side
// key with the oracle's matching outcome key into one compound public key.
//
// This relies on decred/dcrd/dcrec/secp256k1/v4's Jacobian point arithmetic
// directly, since btcec does not expose plain point addition (it only
// exposes scalar multiplication and ECDSA/Schnorr operations) — the same
// low-level package the rest of this module's compound-key math is built on.
func PointAdd(a, b []byte) ([]byte, error) {
	pa, err := parseUncompressedPoint(a)
	if err != nil {
		return nil, fmt.Errorf("point add: first point: %w", err)
	}
	pb, err := parseUncompressedPoint(b)
	if err != nil {
		return nil, fmt.Errorf("point add: second point: %w", err)
	}

	var ja, jb, sum secp256k1.JacobianPoint
	pa.ToJacobian(&ja)
	pb.ToJacobian(&jb)
	secp256k1.AddNonConst(&ja, &jb, &sum)
	sum.ToAffine()

	result := secp256k1.NewPublicKey(&sum.X, &sum.Y)
	return result.SerializeUncompressed(), nil
}

// ScalarAdd adds two 32-byte scalars modulo the curve order. Used by the
// Claim Engine to recover the compound private key for the EccSum mode once
// the oracle's winning-side scalar is known.
func ScalarAdd(a, b []byte) ([]byte, error) {
	var sa, sb, sum secp256k1.ModNScalar
	if overflow := sa.SetByteSlice(a); overflow {
		return nil, fmt.Errorf("scalar add: first scalar overflows group order")
	}
	if overflow := sb.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("scalar add: second scalar overflows group order")
	}
	sum.Add2(&sa, &sb)
	out := sum.Bytes()
	if helpers.IsZeroBytes(out[:]) {
		return nil, fmt.Errorf("scalar add: sum is the zero scalar, not a valid private key")
	}
	return out[:], nil
}

func parseUncompressedPoint(b []byte) (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(b)
}

// BuildRedeemScript emits the redemption script for the given keys and mode.
// It is a pure, total function of its inputs, as required by the invariant
// that the Script Builder is deterministic for a fixed Mode.
func BuildRedeemScript(mode Mode, k Keys) ([]byte, error) {
	switch mode {
	case EccSum:
		return buildEccSumScript(k)
	case IfElse:
		return buildIfElseScript(k)
	default:
		return nil, fmt.Errorf("contract: unknown mode %v", mode)
	}
}

// buildEccSumScript produces OP_1 <YesCompoundPub> <NoCompoundPub> OP_2
// OP_CHECKMULTISIG. The two-party security property (neither side alone can
// precompute a compound key whose discrete log they know) depends on the
// oracle publishing its key after the participants have exchanged theirs;
// this function does not and cannot enforce that ordering.
func buildEccSumScript(k Keys) ([]byte, error) {
	yesCompound, err := PointAdd(k.YesWinnerPub, k.YesOraclePub)
	if err != nil {
		return nil, fmt.Errorf("contract: yes compound key: %w", err)
	}
	noCompound, err := PointAdd(k.NoWinnerPub, k.NoOraclePub)
	if err != nil {
		return nil, fmt.Errorf("contract: no compound key: %w", err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_1)
	builder.AddData(yesCompound)
	builder.AddData(noCompound)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// buildIfElseScript produces the OP_IF/OP_ELSE disjunction between the Yes
// and No 2-of-2 multisig branches. The OP_2 before each pubkey pair (the
// "num required") is followed by another OP_2 (the "num supplied") before
// OP_CHECKMULTISIG — this second push is correct, not redundant: it is a
// plain m=n=2 multisig, and removing it would build a different script.
func buildIfElseScript(k Keys) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_2)
	builder.AddData(k.YesWinnerPub)
	builder.AddData(k.YesOraclePub)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_2)
	builder.AddData(k.NoWinnerPub)
	builder.AddData(k.NoOraclePub)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// P2SHAddress derives the pay-to-script-hash address for a redeem script.
func P2SHAddress(redeemScript []byte, testnet bool) (string, error) {
	params := &chaincfg.MainNetParams
	if testnet {
		params = &chaincfg.TestNet3Params
	}
	addr, err := btcutil.NewAddressScriptHash(redeemScript, params)
	if err != nil {
		return "", fmt.Errorf("contract: p2sh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

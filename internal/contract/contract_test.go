package contract

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func testKeyPair(t *testing.T, seedByte byte) (*btcec.PrivateKey, []byte) {
	t.Helper()
	var buf [32]byte
	for i := range buf {
		buf[i] = seedByte
	}
	priv, pub := btcec.PrivKeyFromBytes(buf[:])
	return priv, pub.SerializeUncompressed()
}

// PointAdd/ScalarAdd must agree: the sum of two private scalars' public keys
// equals the public key of the summed scalar, exactly the relationship the
// Claim Engine depends on to recover a compound private key.
func TestPointAddMatchesScalarAdd(t *testing.T) {
	privA, pubA := testKeyPair(t, 0x01)
	privB, pubB := testKeyPair(t, 0x02)

	summedPub, err := PointAdd(pubA, pubB)
	if err != nil {
		t.Fatalf("PointAdd: %v", err)
	}

	summedScalar, err := ScalarAdd(privA.Serialize(), privB.Serialize())
	if err != nil {
		t.Fatalf("ScalarAdd: %v", err)
	}
	_, summedKeyPub := btcec.PrivKeyFromBytes(summedScalar)

	if !bytes.Equal(summedPub, summedKeyPub.SerializeUncompressed()) {
		t.Errorf("PointAdd(pubA, pubB) != pubkey(ScalarAdd(privA, privB))")
	}
}

// ScalarAdd must reject a sum that lands on the zero scalar — it is not a
// valid private key, and silently returning it would hand the Claim Engine
// an unusable compound key instead of a clear error.
func TestScalarAddRejectsZeroSum(t *testing.T) {
	privA, _ := testKeyPair(t, 0x05)
	var negA secp256k1.ModNScalar
	negA.SetByteSlice(privA.Serialize())
	negA.Negate()
	negBytes := negA.Bytes()

	if _, err := ScalarAdd(privA.Serialize(), negBytes[:]); err == nil {
		t.Error("expected an error summing a scalar with its additive inverse")
	}
}

func TestPointAddIsCommutative(t *testing.T) {
	_, pubA := testKeyPair(t, 0x03)
	_, pubB := testKeyPair(t, 0x04)

	ab, err := PointAdd(pubA, pubB)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := PointAdd(pubB, pubA)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ab, ba) {
		t.Error("PointAdd is not commutative")
	}
}

func sampleKeys(t *testing.T) Keys {
	t.Helper()
	_, yesWinner := testKeyPair(t, 0x11)
	_, noWinner := testKeyPair(t, 0x22)
	_, yesOracle := testKeyPair(t, 0x33)
	_, noOracle := testKeyPair(t, 0x44)
	return Keys{
		YesWinnerPub: yesWinner,
		NoWinnerPub:  noWinner,
		YesOraclePub: yesOracle,
		NoOraclePub:  noOracle,
	}
}

func TestBuildEccSumScriptShape(t *testing.T) {
	k := sampleKeys(t)
	script, err := BuildRedeemScript(EccSum, k)
	if err != nil {
		t.Fatal(err)
	}

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	wantOps := []byte{txscript.OP_1, txscript.OP_DATA_65, txscript.OP_DATA_65, txscript.OP_2, txscript.OP_CHECKMULTISIG}
	i := 0
	for tokenizer.Next() {
		switch i {
		case 0, 3, 4:
			if tokenizer.Opcode() != wantOps[i] {
				t.Fatalf("op %d = %#x, want %#x", i, tokenizer.Opcode(), wantOps[i])
			}
		case 1, 2:
			if len(tokenizer.Data()) != 65 {
				t.Fatalf("push %d length = %d, want 65", i, len(tokenizer.Data()))
			}
		}
		i++
	}
	if err := tokenizer.Err(); err != nil {
		t.Fatalf("tokenizer error: %v", err)
	}
	if i != 5 {
		t.Fatalf("script had %d opcodes, want 5 (OP_1 push push OP_2 OP_CHECKMULTISIG)", i)
	}
}

// buildIfElseScript must keep the stray "num supplied" push — the script is
// a genuine m=n=2 multisig in each branch, not a single OP_2.
func TestBuildIfElseScriptKeepsNumSuppliedPush(t *testing.T) {
	k := sampleKeys(t)
	script, err := BuildRedeemScript(IfElse, k)
	if err != nil {
		t.Fatal(err)
	}

	var opcodes []byte
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		opcodes = append(opcodes, tokenizer.Opcode())
	}
	if err := tokenizer.Err(); err != nil {
		t.Fatalf("tokenizer error: %v", err)
	}

	want := []byte{
		txscript.OP_IF,
		txscript.OP_2, txscript.OP_DATA_65, txscript.OP_DATA_65, txscript.OP_2, txscript.OP_CHECKMULTISIG,
		txscript.OP_ELSE,
		txscript.OP_2, txscript.OP_DATA_65, txscript.OP_DATA_65, txscript.OP_2, txscript.OP_CHECKMULTISIG,
		txscript.OP_ENDIF,
	}
	if len(opcodes) != len(want) {
		t.Fatalf("opcode count = %d, want %d (%v)", len(opcodes), len(want), opcodes)
	}
	for i := range want {
		if opcodes[i] != want[i] {
			t.Errorf("opcode[%d] = %#x, want %#x", i, opcodes[i], want[i])
		}
	}
}

func TestRedeemScriptIsDeterministic(t *testing.T) {
	k := sampleKeys(t)
	a, err := BuildRedeemScript(IfElse, k)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildRedeemScript(IfElse, k)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("BuildRedeemScript is not deterministic for identical inputs")
	}
}

func TestP2SHAddressMainnetVsTestnetDiffer(t *testing.T) {
	k := sampleKeys(t)
	script, err := BuildRedeemScript(EccSum, k)
	if err != nil {
		t.Fatal(err)
	}
	mainnet, err := P2SHAddress(script, false)
	if err != nil {
		t.Fatal(err)
	}
	testnet, err := P2SHAddress(script, true)
	if err != nil {
		t.Fatal(err)
	}
	if mainnet == testnet {
		t.Error("mainnet and testnet P2SH addresses must differ for the same script")
	}
	if mainnet[0] != '3' {
		t.Errorf("mainnet P2SH address %q does not start with 3", mainnet)
	}
	if testnet[0] != '2' {
		t.Errorf("testnet P2SH address %q does not start with 2", testnet)
	}
}

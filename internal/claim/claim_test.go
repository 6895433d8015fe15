package claim

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/txscript"

	"github.com/oraclewager/realitywager/internal/contract"
	"github.com/oraclewager/realitywager/internal/keys"
	"github.com/oraclewager/realitywager/internal/oracle"
	"github.com/oraclewager/realitywager/internal/utxo"
)

type factFixture struct {
	localPriv       []byte
	localPub        []byte
	otherPub        []byte
	oraclePriv      []byte
	oraclePub       []byte
	otherOraclePriv []byte
	otherOPub       []byte
}

func buildFixture(t *testing.T) factFixture {
	t.Helper()
	localPriv := keys.PrivateKeyFromSeed("claimer-seed")
	otherPriv := keys.PrivateKeyFromSeed("counterpart-seed")
	oraclePriv := keys.PrivateKeyFromSeed("oracle-yes-seed")
	otherOraclePriv := keys.PrivateKeyFromSeed("oracle-no-seed")
	return factFixture{
		localPriv:       localPriv.Serialize(),
		localPub:        keys.PublicKeyUncompressed(localPriv),
		otherPub:        keys.PublicKeyUncompressed(otherPriv),
		oraclePriv:      oraclePriv.Serialize(),
		oraclePub:       keys.PublicKeyUncompressed(oraclePriv),
		otherOraclePriv: otherOraclePriv.Serialize(),
		otherOPub:       keys.PublicKeyUncompressed(otherOraclePriv),
	}
}

func oracleServerForFact(t *testing.T, f factFixture, winner string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"yes_pubkey": "%s",
			"no_pubkey": "%s",
			"winner": %s,
			"winner_privkey": %s
		}`,
			hex.EncodeToString(f.oraclePub),
			hex.EncodeToString(f.otherOPub),
			jsonStringOrNull(winner),
			jsonStringOrNull(jsonWinnerPriv(f, winner)),
		)
	}))
}

func jsonStringOrNull(s string) string {
	if s == "" {
		return "null"
	}
	return fmt.Sprintf("%q", s)
}

func jsonWinnerPriv(f factFixture, winner string) string {
	switch winner {
	case "Yes":
		return hex.EncodeToString(f.oraclePriv)
	case "No":
		return hex.EncodeToString(f.otherOraclePriv)
	default:
		return ""
	}
}

func TestClaimEccSumSucceedsForWinner(t *testing.T) {
	f := buildFixture(t)
	srv := oracleServerForFact(t, f, "Yes")
	defer srv.Close()

	script, err := contract.BuildRedeemScript(contract.EccSum, contract.Keys{
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		YesOraclePub: f.oraclePub,
		NoOraclePub:  f.otherOPub,
	})
	if err != nil {
		t.Fatal(err)
	}
	p2shAddr, err := contract.P2SHAddress(script, true)
	if err != nil {
		t.Fatal(err)
	}

	txid := "6666666666666666666666666666666666666666666666666666666666666666"[:64]
	src, err := utxo.NewOverrideSource([]string{fmt.Sprintf("%s:%s:0:%d", p2shAddr, txid, 200000)})
	if err != nil {
		t.Fatal(err)
	}

	localPriv := keys.PrivateKeyFromSeed("claimer-seed")
	destAddr, err := keys.Address(f.otherPub, true) // arbitrary valid destination
	if err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), Params{
		FactID:       1,
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		LocalPriv:    localPriv,
		Fee:          1000,
		Destination:  destAddr,
		Mode:         contract.EccSum,
		Oracle:       oracle.NewClient(srv.URL),
		UTXOSource:   src,
		Testnet:      true,
		NoBroadcast:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tx.TxIn[0].SignatureScript) == 0 {
		t.Error("expected non-empty scriptSig")
	}
	if result.Tx.TxOut[0].Value != 200000-1000 {
		t.Errorf("payout = %d, want %d", result.Tx.TxOut[0].Value, 200000-1000)
	}
}

func TestClaimEccSumRejectsLoser(t *testing.T) {
	f := buildFixture(t)
	srv := oracleServerForFact(t, f, "No") // No side wins, local is Yes side
	defer srv.Close()

	script, err := contract.BuildRedeemScript(contract.EccSum, contract.Keys{
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		YesOraclePub: f.oraclePub,
		NoOraclePub:  f.otherOPub,
	})
	if err != nil {
		t.Fatal(err)
	}
	p2shAddr, err := contract.P2SHAddress(script, true)
	if err != nil {
		t.Fatal(err)
	}

	txid := "7777777777777777777777777777777777777777777777777777777777777777"[:64]
	src, err := utxo.NewOverrideSource([]string{fmt.Sprintf("%s:%s:0:%d", p2shAddr, txid, 200000)})
	if err != nil {
		t.Fatal(err)
	}

	localPriv := keys.PrivateKeyFromSeed("claimer-seed")
	destAddr, err := keys.Address(f.otherPub, true)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(context.Background(), Params{
		FactID:       1,
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		LocalPriv:    localPriv,
		Fee:          1000,
		Destination:  destAddr,
		Mode:         contract.EccSum,
		Oracle:       oracle.NewClient(srv.URL),
		UTXOSource:   src,
		Testnet:      true,
		NoBroadcast:  true,
	})
	if err != ErrWinnerMismatch {
		t.Errorf("err = %v, want ErrWinnerMismatch", err)
	}
}

func TestClaimUndecidedFact(t *testing.T) {
	f := buildFixture(t)
	srv := oracleServerForFact(t, f, "")
	defer srv.Close()

	src, _ := utxo.NewOverrideSource(nil)
	localPriv := keys.PrivateKeyFromSeed("claimer-seed")

	_, err := Run(context.Background(), Params{
		FactID:       1,
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		LocalPriv:    localPriv,
		Fee:          1000,
		Mode:         contract.EccSum,
		Oracle:       oracle.NewClient(srv.URL),
		UTXOSource:   src,
		Testnet:      true,
		NoBroadcast:  true,
	})
	if err != ErrUndecided {
		t.Errorf("err = %v, want ErrUndecided", err)
	}
}

func TestClaimNothingToSpend(t *testing.T) {
	f := buildFixture(t)
	srv := oracleServerForFact(t, f, "Yes")
	defer srv.Close()

	src, _ := utxo.NewOverrideSource(nil) // no utxo at the contract address
	localPriv := keys.PrivateKeyFromSeed("claimer-seed")

	_, err := Run(context.Background(), Params{
		FactID:       1,
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		LocalPriv:    localPriv,
		Fee:          1000,
		Mode:         contract.EccSum,
		Oracle:       oracle.NewClient(srv.URL),
		UTXOSource:   src,
		Testnet:      true,
		NoBroadcast:  true,
	})
	if err != ErrNothingToSpend {
		t.Errorf("err = %v, want ErrNothingToSpend", err)
	}
}

func TestClaimIfElseSelectsWinningBranch(t *testing.T) {
	f := buildFixture(t)
	srv := oracleServerForFact(t, f, "No")
	defer srv.Close()

	script, err := contract.BuildRedeemScript(contract.IfElse, contract.Keys{
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		YesOraclePub: f.oraclePub,
		NoOraclePub:  f.otherOPub,
	})
	if err != nil {
		t.Fatal(err)
	}
	p2shAddr, err := contract.P2SHAddress(script, true)
	if err != nil {
		t.Fatal(err)
	}

	txid := "8888888888888888888888888888888888888888888888888888888888888888"[:64]
	src, err := utxo.NewOverrideSource([]string{fmt.Sprintf("%s:%s:0:%d", p2shAddr, txid, 150000)})
	if err != nil {
		t.Fatal(err)
	}

	// The No side wins, so the claimer here is the counterpart, whose key is
	// the contract's No-side winner key.
	localPriv := keys.PrivateKeyFromSeed("counterpart-seed")
	destAddr, err := keys.Address(f.localPub, true)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), Params{
		FactID:       1,
		YesWinnerPub: f.localPub,
		NoWinnerPub:  f.otherPub,
		LocalPriv:    localPriv,
		Fee:          1000,
		Destination:  destAddr,
		Mode:         contract.IfElse,
		Oracle:       oracle.NewClient(srv.URL),
		UTXOSource:   src,
		Testnet:      true,
		NoBroadcast:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tx.TxIn[0].SignatureScript) == 0 {
		t.Error("expected non-empty scriptSig")
	}

	var ops []byte
	tokenizer := txscript.MakeScriptTokenizer(0, result.Tx.TxIn[0].SignatureScript)
	for tokenizer.Next() {
		ops = append(ops, tokenizer.Opcode())
	}
	if err := tokenizer.Err(); err != nil {
		t.Fatalf("tokenizer error: %v", err)
	}
	if len(ops) != 5 || ops[3] != txscript.OP_FALSE {
		t.Errorf("scriptSig opcodes = %v, want OP_0 <sig> <sig> OP_FALSE <redeemScript>", ops)
	}
}

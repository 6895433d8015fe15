package keys

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/tyler-smith/go-bip39"
)

const (
	bobSeed        = "bob-082b113a7e2a5c6c1c9c682b8b25087c"
	bobPub         = "0460d353f4c834bccd1a0e690dc5b7a3c0e07f1ed916f05234ea539c08c0792f3ee90b7704a329e6e0a9e4cda2eb156ac6b1721f53a308d2bda2cce56efa925ddd"
	bobAddrMainnet = "12fai6JhCHKGdDpJCM8ej3g7RySThdMxCD"
	bobAddrTestnet = "mhBY19Pg1JkXQLHuuv72YxtSHy3Acje1NJ"

	aliceSeed        = "alice-7d267a6b6b7bd0460fcd4a37208dea46"
	alicePub         = "04e08a571e7a61d03fb293be00a8a3e106dfc78cc47e6ef7e088850f3883b22deaa4c904b7e9e96f6ce70a2e9c7a060374f3bbf3d5b081d68d98e6e73ec0093b22"
	aliceAddrTestnet = "mraEF8MUVhpXuXVJDNhM11n9ZbfPiPa8Kh"
)

func TestPrivateKeyFromSeedVectors(t *testing.T) {
	cases := []struct {
		seed       string
		wantPubHex string
	}{
		{bobSeed, bobPub},
		{aliceSeed, alicePub},
	}

	for _, c := range cases {
		priv := PrivateKeyFromSeed(c.seed)
		gotPub := hex.EncodeToString(PublicKeyUncompressed(priv))
		if gotPub != c.wantPubHex {
			t.Errorf("PrivateKeyFromSeed(%q) pub = %s, want %s", c.seed, gotPub, c.wantPubHex)
		}
	}
}

func TestAddressVectors(t *testing.T) {
	bobPubBytes, err := hex.DecodeString(bobPub)
	if err != nil {
		t.Fatal(err)
	}
	alicePubBytes, err := hex.DecodeString(alicePub)
	if err != nil {
		t.Fatal(err)
	}

	if got, err := Address(bobPubBytes, false); err != nil || got != bobAddrMainnet {
		t.Errorf("Address(bob, mainnet) = %q, %v, want %q", got, err, bobAddrMainnet)
	}
	if got, err := Address(bobPubBytes, true); err != nil || got != bobAddrTestnet {
		t.Errorf("Address(bob, testnet) = %q, %v, want %q", got, err, bobAddrTestnet)
	}
	if got, err := Address(alicePubBytes, true); err != nil || got != aliceAddrTestnet {
		t.Errorf("Address(alice, testnet) = %q, %v, want %q", got, err, aliceAddrTestnet)
	}
}

func TestSaveAndLoadSeedIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed")

	if err := SaveSeed(path, bobSeed); err != nil {
		t.Fatalf("SaveSeed: %v", err)
	}

	got, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if got != bobSeed {
		t.Errorf("LoadSeed = %q, want %q", got, bobSeed)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("seed file permissions = %o, want 0600", perm)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "seed" {
			t.Errorf("leftover temp file after SaveSeed: %s", e.Name())
		}
	}
}

func TestEnsureSeedPrefersOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed")
	if err := SaveSeed(path, aliceSeed); err != nil {
		t.Fatal(err)
	}

	got, err := EnsureSeed(bobSeed, path, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != bobSeed {
		t.Errorf("EnsureSeed override = %q, want %q", got, bobSeed)
	}
}

func TestEnsureSeedFailsWithoutSeedOrFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent-seed")

	if _, err := EnsureSeed("", path, false); err == nil {
		t.Error("EnsureSeed with no override, no file, and createIfMissing=false should fail")
	}
}

func TestGenerateSeedProducesValidMnemonic(t *testing.T) {
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	if len(seed) == 0 {
		t.Error("GenerateSeed returned empty string")
	}
	if !bip39.IsMnemonicValid(seed) {
		t.Errorf("GenerateSeed returned an invalid mnemonic: %q", seed)
	}
	// A second call must not repeat — entropy source is crypto/rand via bip39.
	other, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	if seed == other {
		t.Error("GenerateSeed produced identical mnemonics twice in a row")
	}
}

// Package keys implements the Key Material Manager: deterministic derivation
// of a private key from a user seed, the corresponding public key and payment
// address, and the on-disk persistence of the seed itself.
package keys

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// SeedFileName is the name of the persisted seed file under the user's home
// directory, matching the original tool's on-disk layout.
const SeedFileName = ".realitywager"

// DefaultSeedPath returns $HOME/.realitywager.
func DefaultSeedPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("keys: locate home directory: %w", err)
	}
	return filepath.Join(home, SeedFileName), nil
}

// GenerateSeed produces a fresh seed with at least 128 bits of entropy,
// encoded as a BIP-39 mnemonic so the randomness source is auditable. The
// mnemonic string itself is the Seed; it is hashed exactly like any other
// seed to derive the private key.
func GenerateSeed() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("keys: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("keys: encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// LoadSeed reads the seed file at path. Returns an error wrapping
// os.ErrNotExist if no seed has been persisted yet.
func LoadSeed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveSeed persists the seed atomically: it is written to a temp file in the
// same directory and then renamed into place, so the seed file either does
// not exist or contains a complete seed — never a partial write. Permissions
// are restricted to owner read/write.
func SaveSeed(path, seed string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("keys: create seed directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".realitywager-seed-*")
	if err != nil {
		return fmt.Errorf("keys: create temp seed file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(seed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("keys: write temp seed file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("keys: close temp seed file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("keys: restrict seed file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("keys: rename seed file into place: %w", err)
	}
	return nil
}

// PrivateKeyFromSeed derives priv = sha256(seed) — a single SHA-256, not the
// double hash256 used for Bitcoin transaction/block hashing — matching the
// Key Material Manager's explicit derivation rule.
func PrivateKeyFromSeed(seed string) *btcec.PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(sum[:])
	return priv
}

// PublicKeyUncompressed returns the 65-byte uncompressed public key (0x04
// prefix) for a private key, as required by the Key Material Manager and by
// every script that consumes a participant or oracle public key.
func PublicKeyUncompressed(priv *btcec.PrivateKey) []byte {
	return priv.PubKey().SerializeUncompressed()
}

// Address derives the P2PKH base58check address for an uncompressed public
// key. testnet selects magic byte 0x6f (111); otherwise 0x00 (mainnet).
func Address(pubUncompressed []byte, testnet bool) (string, error) {
	params := &chaincfg.MainNetParams
	if testnet {
		params = &chaincfg.TestNet3Params
	}
	addr, err := btcutil.NewAddressPubKey(pubUncompressed, params)
	if err != nil {
		return "", fmt.Errorf("keys: derive address: %w", err)
	}
	return addr.AddressPubKeyHash().EncodeAddress(), nil
}

// EnsureSeed returns the seed to use: the supplied override if non-empty,
// otherwise the seed loaded from path, otherwise (createIfMissing) a freshly
// generated and persisted seed. Mirrors the Key Material Manager's failure
// rule: fails if no seed was supplied and none can be produced.
func EnsureSeed(override, path string, createIfMissing bool) (string, error) {
	if override != "" {
		return override, nil
	}
	seed, err := LoadSeed(path)
	if err == nil {
		return seed, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("keys: load seed: %w", err)
	}
	if !createIfMissing {
		return "", fmt.Errorf("keys: no seed supplied and none persisted at %s", path)
	}
	seed, err = GenerateSeed()
	if err != nil {
		return "", err
	}
	if err := SaveSeed(path, seed); err != nil {
		return "", err
	}
	return seed, nil
}

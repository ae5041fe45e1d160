package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/xchain/model"
)

// SeedSize is the length of every stored key seed.
const SeedSize = 32

// KeyStore keeps named key seeds on the local filesystem, one hex file per
// key under Directory. It is meant for CLI and development use.
type KeyStore struct {
	Directory string
}

// DefaultDirectory returns ~/.xchain/keys.
func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xchain", "keys"), nil
}

// NewKeyStore opens a store in directory, or DefaultDirectory when empty.
func NewKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) path(name string) string {
	return filepath.Join(ks.Directory, name+".key")
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

// ParseSeedHex decodes a 32-byte seed, with or without a 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

// Save writes seed under name. Without overwrite an existing key is an
// error.
func (ks *KeyStore) Save(name string, seed []byte, overwrite bool) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	if len(seed) != SeedSize {
		return "", fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	filePath := ks.path(name)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return "", err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return "", err
	}
	return filePath, file.Close()
}

// Generate draws a fresh seed from rand and saves it under name.
func (ks *KeyStore) Generate(name string, rand io.Reader, overwrite bool) ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, err
	}
	if _, err := ks.Save(name, seed, overwrite); err != nil {
		return nil, err
	}
	return seed, nil
}

// Load returns the seed stored under name.
func (ks *KeyStore) Load(name string) ([]byte, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ks.path(name))
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// List returns the stored key names in sorted order. A missing directory
// is an empty store.
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".key") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".key"))
	}
	sort.Strings(names)
	return names, nil
}

// DeriveChainSeed deterministically derives a per-chain seed from a root
// seed, so one stored key yields unrelated keys on each chain family.
func DeriveChainSeed(rootSeed []byte, chain model.Chain) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if chain == "" {
		return nil, errors.New("chain cannot be empty")
	}
	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xchain-wallet-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("chain:"))
	_, _ = h.Write([]byte(chain))
	return h.Sum(nil), nil
}

// OpenStored loads name from ks, derives its seed for chain and opens the
// chain's provider.
func OpenStored(ks *KeyStore, name string, chain model.Chain, chainID string) (Provider, error) {
	root, err := ks.Load(name)
	if err != nil {
		return nil, model.SignerError("load-key", "wallet: load key "+name, err)
	}
	seed, err := DeriveChainSeed(root, chain)
	if err != nil {
		return nil, model.SignerError("derive-key", "wallet: derive key", err)
	}
	return Open(chain, Config{Seed: seed, ChainID: chainID})
}

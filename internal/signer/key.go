// Package signer loads the service's secp256k1 signing key.
//
// The key comes from the SIGNING_KEY setting when present, otherwise from a
// key file holding a single hex string (default ./secret). A missing or
// malformed key is fatal at startup; the key itself is never logged.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-vault-2fa/internal/config"
)

var ErrNoKey = errors.New("signer: no signing key configured")

// Key holds the loaded private key and its derived address.
type Key struct {
	Private *ecdsa.PrivateKey
	Address common.Address
	// Source is "env" or the key file path; safe to log.
	Source string
}

// Load resolves the signing key: inline hex first, then the key file.
func Load(cfg config.SignerConfig) (*Key, error) {
	if raw := strings.TrimSpace(cfg.PrivateKey); raw != "" {
		return parse(raw, "env")
	}
	if cfg.KeyFile == "" {
		return nil, ErrNoKey
	}
	data, err := os.ReadFile(cfg.KeyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: key file %s not found", ErrNoKey, cfg.KeyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("signer: read key file: %w", err)
	}
	return parse(strings.TrimSpace(string(data)), cfg.KeyFile)
}

func parse(raw, source string) (*Key, error) {
	keyHex := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("signer: key from %s must be a 32-byte hex string (got %d chars)", source, len(keyHex))
	}
	priv, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		// err from HexToECDSA does not echo the key material.
		return nil, fmt.Errorf("signer: invalid key from %s: %w", source, err)
	}
	return &Key{
		Private: priv,
		Address: crypto.PubkeyToAddress(priv.PublicKey),
		Source:  source,
	}, nil
}

// Generate writes a fresh key to path with mode 0600. An existing file is
// never overwritten; its address is returned instead.
func Generate(path string) (common.Address, bool, error) {
	if _, err := os.Stat(path); err == nil {
		k, err := Load(config.SignerConfig{KeyFile: path})
		if err != nil {
			return common.Address{}, false, err
		}
		return k.Address, false, nil
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, false, fmt.Errorf("signer: generate key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return common.Address{}, false, fmt.Errorf("signer: create key dir: %w", err)
		}
	}
	keyHex := fmt.Sprintf("%x", crypto.FromECDSA(priv))
	if err := writeKeyFile(path, []byte(keyHex+"\n")); err != nil {
		return common.Address{}, false, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), true, nil
}

var createKeyFile = func(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
}

// writeKeyFile creates path exclusively and writes data. A partial file is
// removed so the next run generates again instead of loading a truncated key.
func writeKeyFile(path string, data []byte) error {
	f, err := createKeyFile(path)
	if err != nil {
		return fmt.Errorf("signer: create key file: %w", err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("signer: write key file: %w", err)
	}
	return nil
}

package wallet

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/common"
)

const keychainService = "erc20"

// Keystore wraps OS keychain access for named private keys.
type Keystore struct {
	ring keyring.Keyring
}

// DefaultKeystore returns a keystore backed by the OS keychain.
// fileDir and password only matter when the file backend ends up in use.
func DefaultKeystore(fileDir string, password func(string) (string, error)) (*Keystore, error) {
	cfg := keyring.Config{
		ServiceName:              keychainService,
		KeychainTrustApplication: true,
		FileDir:                  fileDir,
		FilePasswordFunc:         password,
	}

	// On Linux without a GUI, fall back to file-based storage.
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		ring, err = keyring.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening keyring: %w", err)
		}
	}
	return &Keystore{ring: ring}, nil
}

// NewKeystore wraps an already opened keyring.
func NewKeystore(ring keyring.Keyring) *Keystore {
	return &Keystore{ring: ring}
}

// Store saves a private key under name after checking it parses, and
// returns the address the key controls.
func (k *Keystore) Store(name, hexKey string) (common.Address, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	err = k.ring.Set(keyring.Item{
		Key:   name,
		Data:  []byte(stripHexPrefix(hexKey)),
		Label: keychainService + " " + name,
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("keychain store: %w", err)
	}
	return AddressOf(key), nil
}

// Retrieve fetches the private key stored under name.
func (k *Keystore) Retrieve(name string) (string, error) {
	item, err := k.ring.Get(name)
	if err != nil {
		return "", fmt.Errorf("keychain retrieve %q: %w", name, err)
	}
	return string(item.Data), nil
}

// Delete removes a stored key.
func (k *Keystore) Delete(name string) error {
	return k.ring.Remove(name)
}

// ErrKeystoreUnavailable is returned when a keyring: source is resolved
// without a keystore.
var ErrKeystoreUnavailable = errors.New("keystore not available")

// ResolveKey turns a key source into hex key material:
//
//	env:NAME      the value of environment variable NAME
//	keyring:NAME  the key stored under NAME in ks
//	anything else the literal hex key
func ResolveKey(source string, ks *Keystore) (string, error) {
	switch {
	case strings.HasPrefix(source, "env:"):
		name := strings.TrimPrefix(source, "env:")
		v, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return v, nil
	case strings.HasPrefix(source, "keyring:"):
		if ks == nil {
			return "", ErrKeystoreUnavailable
		}
		return ks.Retrieve(strings.TrimPrefix(source, "keyring:"))
	default:
		return source, nil
	}
}
